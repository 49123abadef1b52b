// Package vdevice is the consumer end of the frame transport: a single
// virtual camera device with one stream and the clients subscribed to it.
//
// The device is idle while no client is subscribed and streaming otherwise.
// Frames arriving while idle are discarded without error. While streaming,
// each frame is wrapped in a Sample whose presentation timestamp comes from
// the host clock and never decreases, then pushed to every client.
//
// Receiver adapts a Device to msgchannel.Handler for the extension process.
package vdevice

// Package framebuffer implements the single-producer single-consumer ring of
// frame slots used by the shared-memory transport.
//
// The ring lives in a caller-supplied byte region so the same code runs over
// heap memory in tests and over a mapped segment shared by two processes.
// Layout, in native byte order:
//
//	offset 0   header: writeIndex u32, readIndex u32, frameCount u32, pad u32
//	offset 16  N slots, each a 32-byte metadata block followed by the data region
//
// Slot metadata: width, height, bytesPerRow, pixelFormat (u32 each),
// timestamp (u64), sequence (u32), valid (u32).
//
// Only atomic operations touch the header counters and the valid flags. The
// producer fills a slot and then publishes it by storing valid=1; the
// consumer copies it out, stores valid=0 and decrements frameCount. A full
// ring rejects the incoming frame.
package framebuffer

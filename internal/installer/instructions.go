package installer

// Instructions returns user guidance for status.
func Instructions(status Status) string {
	switch status {
	case StatusNeedsApproval:
		return `To complete installation:
1. Make sure the vcam binary is executable (chmod +x vcam)
2. Check that your user may open the shared memory and NATS ports
3. Click 'Install Virtual Camera' again`
	case StatusError:
		return `Installation failed. Try these steps:
1. Check the log for the extension's last error
2. Make sure no other vcam extension is running
3. Try installing again`
	case StatusInstalling:
		return `Installing virtual camera extension...
The extension process is starting and will report when it is ready.`
	case StatusActive:
		return `Virtual camera extension is active and ready to use.
The camera should appear in video conferencing applications.`
	case StatusInactive:
		return `Virtual camera extension is installed but not active.
Try installing again or restarting the application.`
	default:
		return `Click 'Install Virtual Camera' to set up the virtual camera extension.`
	}
}

// Instructions returns guidance for the current status.
func (s *Service) Instructions() string {
	return Instructions(s.Status().Status)
}

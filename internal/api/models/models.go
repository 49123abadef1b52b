package models

import (
	"github.com/sceneit/vcam/internal/core"
	"github.com/sceneit/vcam/internal/installer"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2024-12-15 14:30" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"a1b2c3d4" doc:"Unique build identifier"`
	Protocol  int    `json:"protocol" example:"1" doc:"Frame wire format version"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go compiler version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Compiler used"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Camera models
type CameraStatusResponse struct {
	Body core.Status
}

type CameraSourceRequest struct {
	Body struct {
		CameraID string `json:"camera_id" example:"usb-046d-0825" doc:"Capture device identifier, empty for the default camera"`
	}
}

// Overlay models
type OverlayInfo struct {
	ID          string `json:"id" example:"professional-frame" doc:"Overlay identifier"`
	Name        string `json:"name" example:"Professional Frame" doc:"Display name"`
	Description string `json:"description" doc:"Short description"`
}

type OverlaySelection struct {
	OverlayID string `json:"overlay_id" example:"professional-frame" doc:"Selected overlay, empty for none"`
	Effect    string `json:"effect" example:"none" enum:"none,blur,monochrome,vintage" doc:"Selected effect"`
}

type OverlayCatalogData struct {
	Overlays []OverlayInfo    `json:"overlays" doc:"Available overlays"`
	Effects  []string         `json:"effects" doc:"Available effects"`
	Selected OverlaySelection `json:"selected" doc:"Current selection"`
}

type OverlayCatalogResponse struct {
	Body OverlayCatalogData
}

type OverlaySelectionRequest struct {
	Body OverlaySelection
}

type OverlaySelectionResponse struct {
	Body OverlaySelection
}

// Extension models
type ExtensionData struct {
	installer.Snapshot
	Instructions string `json:"instructions" doc:"User guidance for the current status"`
	Busy         bool   `json:"busy" example:"false" doc:"Whether a request is running"`
}

type ExtensionResponse struct {
	Body ExtensionData
}

// Device models
type DeviceData struct {
	DeviceID  string `json:"device_id,omitempty" doc:"Virtual device UUID, empty until the extension reports"`
	Streaming bool   `json:"streaming" example:"true" doc:"Whether any client is subscribed"`
	Clients   int    `json:"clients" example:"1" doc:"Subscribed client count"`
	UpdatedAt string `json:"updated_at,omitempty" doc:"Time of the last report"`
}

type DeviceResponse struct {
	Body DeviceData
}

// Settings models
type SettingsData struct {
	SelectedCameraID string `json:"selected_camera_id" doc:"Capture device identifier"`
	UserName         string `json:"user_name" example:"Sam Rivera" doc:"Name shown on overlays with a name plate"`
	UserJobTitle     string `json:"user_job_title" example:"Engineer" doc:"Job title shown under the name"`
	OverlayID        string `json:"overlay_id" doc:"Selected overlay"`
	Effect           string `json:"effect" doc:"Selected effect"`
}

type SettingsResponse struct {
	Body SettingsData
}

type SettingsUpdateRequest struct {
	Body struct {
		UserName     *string `json:"user_name,omitempty" doc:"Name shown on overlays with a name plate"`
		UserJobTitle *string `json:"user_job_title,omitempty" doc:"Job title shown under the name"`
	}
}

// Log models
type LogEntryData struct {
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"api" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

type LogsData struct {
	Entries []LogEntryData `json:"entries" doc:"Most recent log entries, oldest first"`
	Count   int            `json:"count" example:"100" doc:"Number of entries returned"`
}

type LogsResponse struct {
	Body LogsData
}

type LogLevelsResponse struct {
	Body struct {
		Levels map[string]string `json:"levels" doc:"Effective level per module, plus the global level"`
	}
}

type LogLevelRequest struct {
	Module string `path:"module" example:"transport" doc:"Logging module, or global"`
	Body   struct {
		Level string `json:"level" example:"debug" enum:"debug,info,warn,error" doc:"New level"`
	}
}

package capture

import (
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/oscil-go/internal/errors"
)

// DeviceInfo describes one capture device known to the audio backend.
type DeviceInfo struct {
	ID        string
	Name      string
	IsDefault bool
}

// preferredBackend picks the native audio backend per platform; other
// platforms let miniaudio auto-select.
func preferredBackend() []malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return []malgo.Backend{malgo.BackendAlsa}
	case "windows":
		return []malgo.Backend{malgo.BackendWasapi}
	case "darwin":
		return []malgo.Backend{malgo.BackendCoreaudio}
	default:
		return nil
	}
}

// ListDevices enumerates the capture devices available on this host.
func ListDevices() ([]DeviceInfo, error) {
	ctx, err := malgo.InitContext(preferredBackend(), malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component("capture").
			Category(errors.CategoryAudioSource).
			Build()
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component("capture").
			Category(errors.CategoryAudioSource).
			Build()
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		devices = append(devices, DeviceInfo{
			ID:        infos[i].ID.String(),
			Name:      infos[i].Name(),
			IsDefault: infos[i].IsDefault != 0,
		})
	}
	return devices, nil
}

// selectDevice matches the configured source name against the available
// devices. An empty or "default" source selects the backend default. The
// returned DeviceID is only meaningful when useDefault is false; the caller
// must keep it alive while the device uses its pointer. An unmatched name
// is a configuration error, not a fallback.
func selectDevice(infos []malgo.DeviceInfo, source string) (id malgo.DeviceID, useDefault bool, name string, err error) {
	if source == "" || strings.EqualFold(source, "default") {
		return malgo.DeviceID{}, true, "default", nil
	}

	want := strings.ToLower(source)
	for i := range infos {
		if strings.Contains(strings.ToLower(infos[i].Name()), want) {
			return infos[i].ID, false, infos[i].Name(), nil
		}
	}

	err = errors.Newf("audio source not found: %s", source).
		Component("capture").
		Category(errors.CategoryNotFound).
		Context("source", source).
		Build()
	return malgo.DeviceID{}, false, "", err
}

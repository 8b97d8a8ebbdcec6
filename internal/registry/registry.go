// Package registry discovers firmware artifacts on disk. Each configured
// device type owns one subdirectory of the firmware root; every regular file
// in it is an available version, labelled by its filename without extension.
// Dropping a new file makes it discoverable on the next scan, with no
// registration step.
package registry

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrArtifactNotFound is returned by Resolve when no artifact matches the
// (device type, version) pair.
var ErrArtifactNotFound = errors.New("firmware artifact not found")

// Version is one available firmware version for a device type.
type Version struct {
	Label     string `json:"version"`
	SizeBytes int64  `json:"size_bytes"`
}

// Device is a device type together with its available versions.
type Device struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Versions []Version `json:"versions"`
}

// Artifact is a resolved firmware binary.
type Artifact struct {
	DeviceType string
	Label      string
	Path       string
	SizeBytes  int64
}

// Registry answers existence and metadata queries against the firmware
// directory. It holds no mutable state and is safe for concurrent use;
// every call re-reads the filesystem.
type Registry struct {
	root        string
	deviceTypes []string
}

func New(root string, deviceTypes []string) *Registry {
	return &Registry{root: root, deviceTypes: deviceTypes}
}

// KnownDevice reports whether the device type is configured.
func (r *Registry) KnownDevice(deviceType string) bool {
	for _, dt := range r.deviceTypes {
		if dt == deviceType {
			return true
		}
	}
	return false
}

// List enumerates every configured device type with its available versions.
// A missing device directory yields an empty version list, not an error.
func (r *Registry) List() ([]Device, error) {
	devices := make([]Device, 0, len(r.deviceTypes))
	for _, dt := range r.deviceTypes {
		versions, err := r.scan(dt)
		if err != nil {
			return nil, err
		}
		devices = append(devices, Device{ID: dt, Name: dt, Versions: versions})
	}
	return devices, nil
}

// Resolve returns the artifact for a (device type, version) pair or
// ErrArtifactNotFound.
func (r *Registry) Resolve(deviceType, label string) (*Artifact, error) {
	if !r.KnownDevice(deviceType) {
		return nil, ErrArtifactNotFound
	}
	versions, err := r.scan(deviceType)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		if v.Label != label {
			continue
		}
		path, err := r.pathFor(deviceType, label)
		if err != nil {
			return nil, err
		}
		return &Artifact{
			DeviceType: deviceType,
			Label:      label,
			Path:       path,
			SizeBytes:  v.SizeBytes,
		}, nil
	}
	return nil, ErrArtifactNotFound
}

func (r *Registry) scan(deviceType string) ([]Version, error) {
	entries, err := os.ReadDir(filepath.Join(r.root, deviceType))
	if err != nil {
		if os.IsNotExist(err) {
			return []Version{}, nil
		}
		return nil, err
	}

	versions := make([]Version, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		versions = append(versions, Version{
			Label:     stripExtension(entry.Name()),
			SizeBytes: info.Size(),
		})
	}
	return versions, nil
}

// pathFor finds the backing file for a label. The label is derived from the
// filename, so the reverse lookup has to re-scan the directory entries.
func (r *Registry) pathFor(deviceType, label string) (string, error) {
	dir := filepath.Join(r.root, deviceType)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if stripExtension(entry.Name()) == label {
			return filepath.Join(dir, entry.Name()), nil
		}
	}
	return "", ErrArtifactNotFound
}

func stripExtension(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext)
}

// Package config holds the device-side identity and endpoint configuration
// consumed by the client and handed to transports on connect.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration errors
var (
	ErrMissingHostName = errors.New("hostname is required")
	ErrMissingDeviceID = errors.New("device id is required")
	ErrMissingAuth     = errors.New("no authentication material provided")
	ErrMalformedPair   = errors.New("malformed key=value pair")
)

// TokenProvider generates a security token scoped to a resource URI. It is
// the boundary to an external device-auth module; the client never generates
// tokens itself.
type TokenProvider interface {
	Token(resource string, lifetime time.Duration) (string, error)
}

// Device identifies a single device against one hub endpoint.
type Device struct {
	HostName              string `yaml:"hostname"`
	DeviceID              string `yaml:"device_id"`
	SharedAccessKey       string `yaml:"shared_access_key,omitempty"`
	SharedAccessSignature string `yaml:"shared_access_signature,omitempty"`
	GatewayHostName       string `yaml:"gateway_hostname,omitempty"`

	// Auth, when set, supersedes the key material above.
	Auth TokenProvider `yaml:"-"`
}

// Validate checks that the configuration carries an identity and at least
// one way to authenticate.
func (d Device) Validate() error {
	if d.HostName == "" {
		return ErrMissingHostName
	}
	if d.DeviceID == "" {
		return ErrMissingDeviceID
	}
	if d.SharedAccessKey == "" && d.SharedAccessSignature == "" && d.Auth == nil {
		return ErrMissingAuth
	}
	return nil
}

// Endpoint returns the host the transport should dial, preferring a gateway
// when one is configured.
func (d Device) Endpoint() string {
	if d.GatewayHostName != "" {
		return d.GatewayHostName
	}
	return d.HostName
}

// ParseConnectionString parses the semicolon-delimited connection string
// format:
//
//	HostName=<host>;DeviceId=<id>;SharedAccessKey=<key>[;GatewayHostName=<gw>]
//
// Unknown keys are ignored so newer strings remain parseable.
func ParseConnectionString(cs string) (Device, error) {
	var dev Device
	for _, segment := range strings.Split(cs, ";") {
		if segment == "" {
			continue
		}
		key, value, found := strings.Cut(segment, "=")
		if !found || key == "" {
			return Device{}, fmt.Errorf("%w: %q", ErrMalformedPair, segment)
		}
		switch key {
		case "HostName":
			dev.HostName = value
		case "DeviceId":
			dev.DeviceID = value
		case "SharedAccessKey":
			dev.SharedAccessKey = value
		case "SharedAccessSignature":
			dev.SharedAccessSignature = value
		case "GatewayHostName":
			dev.GatewayHostName = value
		}
	}
	if err := dev.Validate(); err != nil {
		return Device{}, err
	}
	return dev, nil
}

// FromDeviceAuth builds a Device around an external auth module, as used by
// provisioning flows where no connection string exists.
func FromDeviceAuth(hubURI, deviceID string, auth TokenProvider) (Device, error) {
	dev := Device{
		HostName: hubURI,
		DeviceID: deviceID,
		Auth:     auth,
	}
	if err := dev.Validate(); err != nil {
		return Device{}, err
	}
	return dev, nil
}

// FromFile loads a Device from a YAML file.
func FromFile(path string) (Device, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Device{}, fmt.Errorf("read config: %w", err)
	}
	var dev Device
	if err = yaml.Unmarshal(data, &dev); err != nil {
		return Device{}, fmt.Errorf("parse config: %w", err)
	}
	if err = dev.Validate(); err != nil {
		return Device{}, err
	}
	return dev, nil
}

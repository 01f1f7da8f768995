// Package ocpp holds the protocol vocabulary shared by the SOAP and JSON
// transports: versions, namespaces, message type numbers and error codes.
package ocpp

import (
	"fmt"
	"strings"
)

// Version identifies one OCPP protocol revision.
type Version int

const (
	V12 Version = iota + 1
	V15
	V16
)

// Versions lists every supported revision, oldest first.
var Versions = []Version{V12, V15, V16}

var versionInfo = map[Version]struct {
	name        string
	namespace   string
	subProtocol string
}{
	V12: {name: "1.2", namespace: "urn://Ocpp/Cs/2010/08", subProtocol: "ocpp1.2"},
	V15: {name: "1.5", namespace: "urn://Ocpp/Cs/2012/06", subProtocol: "ocpp1.5"},
	V16: {name: "1.6", namespace: "urn://Ocpp/Cs/2015/10", subProtocol: "ocpp1.6"},
}

func (v Version) String() string {
	if info, ok := versionInfo[v]; ok {
		return info.name
	}
	return fmt.Sprintf("Version(%d)", int(v))
}

// Namespace returns the central system SOAP schema namespace of v.
func (v Version) Namespace() string {
	return versionInfo[v].namespace
}

// SubProtocol returns the JSON transport sub-protocol name of v.
func (v Version) SubProtocol() string {
	return versionInfo[v].subProtocol
}

// ParseVersion accepts "1.6", "16", "v1.6" and "ocpp1.6" style input.
func ParseVersion(raw string) (Version, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	value = strings.TrimPrefix(value, "ocpp")
	value = strings.TrimPrefix(value, "v")
	switch value {
	case "1.2", "12":
		return V12, nil
	case "1.5", "15":
		return V15, nil
	case "1.6", "16":
		return V16, nil
	default:
		return 0, fmt.Errorf("unsupported ocpp version %q", raw)
	}
}

// VersionForNamespace maps a SOAP payload namespace back to its version.
func VersionForNamespace(ns string) (Version, bool) {
	for v, info := range versionInfo {
		if info.namespace == ns {
			return v, true
		}
	}
	return 0, false
}

// TaskOrigin records who triggered a server initiated call.
type TaskOrigin string

const (
	// OriginInternal is an action triggered from inside the central system,
	// for example by an operator.
	OriginInternal TaskOrigin = "internal"
	// OriginExternal is an action triggered by an integrated third party,
	// for example a roaming partner.
	OriginExternal TaskOrigin = "external"
)

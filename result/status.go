package result

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Status is the discriminated outcome of a handled message.
type Status int

const (
	None Status = iota
	Success
	Failure
	Unexpected
	Unauthorized
	Already
	NotFound
	BadPrerequisites
	BadParameters
	Cancelled
	Timeout
	NoConnection
	NotImplemented
)

var statusNames = [...]string{
	None:             "None",
	Success:          "Success",
	Failure:          "Failure",
	Unexpected:       "Unexpected",
	Unauthorized:     "Unauthorized",
	Already:          "Already",
	NotFound:         "NotFound",
	BadPrerequisites: "BadPrerequisites",
	BadParameters:    "BadParameters",
	Cancelled:        "Cancelled",
	Timeout:          "Timeout",
	NoConnection:     "NoConnection",
	NotImplemented:   "NotImplemented",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// ParseStatus returns the status with the given name
func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if n == name {
			return Status(i), nil
		}
	}
	return None, fmt.Errorf("unknown result status %q", name)
}

// MarshalJSON encodes the status by name
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a status name
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

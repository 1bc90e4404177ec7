// Package push contains the public domain model for push applications, their
// variants and the messages fanned out to them.
package push

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// VariantType is the delivery channel category of a Variant.
type VariantType string

const (
	VariantAndroid    VariantType = "android"
	VariantIOS        VariantType = "ios"
	VariantWebPush    VariantType = "web_push"
	VariantADM        VariantType = "adm"
	VariantWindowsWNS VariantType = "windows_wns"
	VariantSimplePush VariantType = "simple_push"
)

var allVariantTypes = []VariantType{
	VariantAndroid,
	VariantIOS,
	VariantWebPush,
	VariantADM,
	VariantWindowsWNS,
	VariantSimplePush,
}

// AllVariantTypes returns the fixed enumeration of channel types in declaration order.
func AllVariantTypes() []VariantType {
	out := make([]VariantType, len(allVariantTypes))
	copy(out, allVariantTypes)
	return out
}

// ParseVariantType maps a case-insensitive name onto a VariantType.
func ParseVariantType(raw string) (VariantType, error) {
	candidate := VariantType(strings.ToLower(strings.TrimSpace(raw)))
	for _, t := range allVariantTypes {
		if t == candidate {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown variant type %q", raw)
}

// Variant is one channel-specific registration target of a PushApplication.
// VariantID is globally unique.
type Variant struct {
	VariantID     string      `json:"variantID" firestore:"variant_id"`
	ApplicationID string      `json:"pushApplicationID" firestore:"application_id"`
	Type          VariantType `json:"type" firestore:"type"`
	Name          string      `json:"name,omitempty" firestore:"name"`
	Secret        string      `json:"-" firestore:"secret"`
}

// PushApplication owns a set of Variants.
type PushApplication struct {
	ApplicationID string    `json:"pushApplicationID"`
	Name          string    `json:"name"`
	MasterSecret  string    `json:"-"`
	Variants      []Variant `json:"variants"`
}

// VariantByType returns the first variant of the given type.
func (a *PushApplication) VariantByType(t VariantType) (Variant, bool) {
	for _, v := range a.Variants {
		if v.Type == t {
			return v, true
		}
	}
	return Variant{}, false
}

// Criteria narrows the delivery of a PushMessage.
// A nil Variants slice targets every variant of the application.
type Criteria struct {
	Variants    []string `json:"variants,omitempty"`
	Aliases     []string `json:"alias,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	DeviceTypes []string `json:"deviceType,omitempty"`
}

// Message is the user-visible payload.
type Message struct {
	Alert string            `json:"alert,omitempty"`
	Sound string            `json:"sound,omitempty"`
	Badge int               `json:"badge,omitempty"`
	Data  map[string]string `json:"user-data,omitempty"`
}

// PushMessage is a caller-submitted push request.
type PushMessage struct {
	Message          Message  `json:"message"`
	Criteria         Criteria `json:"criteria"`
	IPAddress        string   `json:"-"`
	ClientIdentifier string   `json:"-"`
}

const strippedAlertLength = 25

// StrippedJSON renders the audit form of the message: a shortened alert, the
// user-data keys and the full criteria. Data values are never included.
func (m *PushMessage) StrippedJSON() string {
	alert := []rune(m.Message.Alert)
	shortened := string(alert)
	if len(alert) > strippedAlertLength {
		shortened = string(alert[:strippedAlertLength]) + "..."
	}

	var keys []string
	for k := range m.Message.Data {
		keys = append(keys, k)
	}

	stripped := struct {
		Alert    string   `json:"alert,omitempty"`
		DataKeys []string `json:"user-data-keys,omitempty"`
		Criteria Criteria `json:"criteria"`
	}{
		Alert:    shortened,
		DataKeys: sortedCopy(keys),
		Criteria: m.Criteria,
	}
	b, err := json.Marshal(stripped)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// PushMessageInformation is the correlation record created once per submitted
// PushMessage. Every fan-out event references it by ID.
type PushMessageInformation struct {
	ID               string    `json:"id"`
	ApplicationID    string    `json:"pushApplicationID"`
	RawJSONMessage   string    `json:"rawJsonMessage"`
	IPAddress        string    `json:"ipAddress,omitempty"`
	ClientIdentifier string    `json:"clientIdentifier,omitempty"`
	SubmitDate       time.Time `json:"submitDate"`
}

// MessageWithVariants is one fan-out unit: the variants of a single Type that
// should receive a message.
type MessageWithVariants struct {
	Info     *PushMessageInformation `json:"info"`
	Message  *PushMessage            `json:"message"`
	Type     VariantType             `json:"type"`
	Variants []Variant               `json:"variants"`
}

func sortedCopy(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := slices.Clone(in)
	slices.Sort(out)
	return out
}

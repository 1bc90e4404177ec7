package push

import (
	"context"
	"time"
)

// VariantFinder resolves variants through the global variant-ID index.
type VariantFinder interface {
	// FindByVariantID returns nil and no error when the ID is unknown.
	FindByVariantID(ctx context.Context, variantID string) (*Variant, error)
}

// ApplicationFinder loads push applications together with their variants.
type ApplicationFinder interface {
	// FindApplication returns nil and no error when the application is unknown.
	FindApplication(ctx context.Context, applicationID string) (*PushApplication, error)
	// FindApplicationByVariantID returns the single application owning a variant.
	FindApplicationByVariantID(ctx context.Context, variantID string) (*PushApplication, error)
}

// MetricsRecorder records one push submission and returns its correlation record.
type MetricsRecorder interface {
	StoreNewRequest(ctx context.Context, applicationID, strippedPayloadJSON, ipAddress, clientIdentifier string) (*PushMessageInformation, error)
}

// Emitter hands a fan-out unit to the channel consuming its Type.
// Implementations must not block on downstream delivery.
type Emitter interface {
	Emit(ctx context.Context, msg *MessageWithVariants) error
}

// Sender fans a message out to the variants of an application.
type Sender interface {
	Send(ctx context.Context, app *PushApplication, msg *PushMessage) (*PushMessageInformation, error)
}

// Installation is one device registered against a variant.
type Installation struct {
	DeviceToken string    `json:"deviceToken" firestore:"device_token"`
	Alias       string    `json:"alias,omitempty" firestore:"alias"`
	DeviceType  string    `json:"deviceType,omitempty" firestore:"device_type"`
	UpdatedAt   time.Time `json:"-" firestore:"updated_at"`
}

// InstallationStore manages the device tokens registered against variants.
type InstallationStore interface {
	Register(ctx context.Context, variantID string, installation Installation) error
	Unregister(ctx context.Context, variantID, deviceToken string) error
	Tokens(ctx context.Context, variantID string) ([]string, error)
	IsInstalled(ctx context.Context, variantID, deviceToken string) (bool, error)
}

// TokenDispatcher delivers a message to a batch of channel-specific device tokens.
type TokenDispatcher interface {
	// Dispatch returns a receipt, the tokens the channel reported as dead, and an
	// error only for failures worth retrying.
	Dispatch(ctx context.Context, tokens []string, msg *PushMessage) (string, []string, error)
}

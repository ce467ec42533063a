package identity

import (
	"context"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is the region used to parse contact phone numbers that
// are not in international format.
var DefaultPhoneRegion = "US"

// Registration is the payload submitted by a new registrant.
type Registration struct {
	Email           string         `json:"email"`
	Password        string         `json:"password"`
	ConfirmPassword string         `json:"confirm_password"`
	Role            string         `json:"role"`
	Phone           string         `json:"phone,omitempty"`
	Attributes      map[string]any `json:"attributes,omitempty"`
}

// Validate will run validation rules
func (r Registration) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(validateStringEquals(r.Password)),
		),
		validation.Field(
			&r.Role,
			validation.Required,
			validation.In(string(RolePublic), string(RoleCollector), string(RoleRecyclingCenter)),
		),
	)
}

func validateStringEquals(expected string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != expected {
			return fmt.Errorf("values do not match")
		}
		return nil
	}
}

// NormalizePhone parses and reformats a contact phone number to E.164.
// Numbers without a country prefix are parsed against DefaultPhoneRegion.
func NormalizePhone(phone string) (string, error) {
	num, err := phonenumbers.Parse(phone, DefaultPhoneRegion)
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("invalid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// RegistrationOutcome is the terminal state of one registration attempt.
// Either Session is the stripped snapshot of a fully formed active account,
// or PendingApproval is set and the caller receives only the confirmation
// payload. The persistent record, digest included, never crosses this
// boundary.
type RegistrationOutcome struct {
	Session         *Session `json:"session,omitempty"`
	PendingApproval bool     `json:"pending_approval,omitempty"`
	Email           string   `json:"email"`
	Role            Role     `json:"role"`
	Message         string   `json:"message,omitempty"`
}

// RegistrationWorkflow decides whether a new registrant is activated
// immediately or queued for administrative approval, based on the requested
// role.
type RegistrationWorkflow struct {
	store  CredentialStore
	hasher PasswordHasher
	logger Logger
}

// NewRegistrationWorkflow builds the workflow over the given store.
func NewRegistrationWorkflow(store CredentialStore, hasher PasswordHasher) *RegistrationWorkflow {
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	return &RegistrationWorkflow{
		store:  store,
		hasher: hasher,
		logger: defLogger{},
	}
}

func (w *RegistrationWorkflow) WithLogger(logger Logger) *RegistrationWorkflow {
	if logger != nil {
		w.logger = logger
	}
	return w
}

// Register runs one registration attempt to a terminal state. There are no
// partial writes: either a fully formed profile exists afterwards or none
// does.
func (w *RegistrationWorkflow) Register(ctx context.Context, data Registration) (*RegistrationOutcome, error) {
	if err := data.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid registration payload").
			WithTextCode(TextCodeInvalidInput)
	}

	role, ok := ParseRole(data.Role)
	if !ok || !SelfRegistrable(role) {
		// ADMIN is provisioned out of band; asking for it here is a
		// configuration error, not a runtime path.
		return nil, InvalidInputError(map[string]any{
			"role": data.Role,
		})
	}

	email := NormalizeEmail(data.Email)

	if _, err := w.store.FindByEmail(ctx, email); err == nil {
		return nil, DuplicateEmailError(email)
	} else if !goerrors.IsNotFound(err) {
		return nil, err
	}

	digest, err := w.hasher.HashPassword(data.Password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	profile := &Profile{
		Email:          email,
		PasswordDigest: digest,
		Role:           role,
		Status:         StatusActive,
		AccountStatus:  AccountActive,
		Attributes:     data.Attributes,
	}

	if RequiresApproval(role) {
		profile.Status = StatusPendingApproval
	}

	if data.Phone != "" {
		phone, err := NormalizePhone(data.Phone)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid contact phone number").
				WithTextCode(TextCodeInvalidInput)
		}
		profile.SetAttribute("phone", phone)
	}

	if id, err := hashid.NewUUID(email); err == nil {
		profile.ID = id
	} else {
		profile.ID = uuid.New()
	}

	created, err := w.store.Insert(ctx, profile)
	if err != nil {
		return nil, err
	}

	outcome := &RegistrationOutcome{
		Session: snapshotProfile(created),
		Email:   created.Email,
		Role:    created.Role,
	}

	if RequiresApproval(role) {
		outcome.Session = nil
		outcome.PendingApproval = true
		outcome.Message = approvalMessage(role)
		w.logger.Info("registration queued for approval: %s (%s)", email, role)
	}

	return outcome, nil
}

func approvalMessage(role Role) string {
	return fmt.Sprintf(
		"Your %s registration was received and is awaiting administrator approval. You will be able to log in once your account is activated.",
		role,
	)
}

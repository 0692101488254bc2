package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrymomot/oauth2client/pkg/sanitizer"
)

// User is the capability set the reconciler needs from a local identity record.
type User interface {
	// UserID returns the stable local identifier. Empty until first saved.
	UserID() string

	// Apply assigns attribute values onto the record.
	Apply(attrs Attributes) error

	// EmailVerified reports whether a verification timestamp is set.
	EmailVerified() bool

	// MarkEmailVerified sets the verification timestamp.
	MarkEmailVerified(at time.Time)
}

// Repository looks up and persists local users.
type Repository interface {
	// FindByProviderID returns the user whose field equals id, or ErrNotFound.
	FindByProviderID(ctx context.Context, field, id string) (User, error)

	// FindByEmail returns the user whose field equals email, or ErrNotFound.
	FindByEmail(ctx context.Context, field, email string) (User, error)

	// New returns an unsaved record.
	New(ctx context.Context) User

	// Save inserts or updates the record. Unique violations return ErrConflict.
	Save(ctx context.Context, u User) error
}

// Account is the default identity record.
type Account struct {
	ID              string     `json:"id"`
	ProviderID      string     `json:"oauth2_id,omitempty"`
	Email           string     `json:"email,omitempty"`
	Name            string     `json:"name,omitempty"`
	FirstName       string     `json:"first_name,omitempty"`
	LastName        string     `json:"last_name,omitempty"`
	Avatar          string     `json:"avatar,omitempty"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type accountSetter func(a *Account, v any) error

var accountSetters = map[string]accountSetter{
	FieldProviderID: stringSetter(func(a *Account, s string) { a.ProviderID = s }),
	FieldEmail:      stringSetter(func(a *Account, s string) { a.Email = s }),
	FieldName:       textSetter(func(a *Account, s string) { a.Name = s }),
	FieldFirstName:  textSetter(func(a *Account, s string) { a.FirstName = s }),
	FieldLastName:   textSetter(func(a *Account, s string) { a.LastName = s }),
	FieldAvatar:     stringSetter(func(a *Account, s string) { a.Avatar = s }),
}

// AccountFields lists the local fields Account accepts.
func AccountFields() []string {
	return []string{FieldProviderID, FieldEmail, FieldName, FieldFirstName, FieldLastName, FieldAvatar}
}

func (a *Account) UserID() string { return a.ID }

func (a *Account) EmailVerified() bool { return a.EmailVerifiedAt != nil }

func (a *Account) MarkEmailVerified(at time.Time) {
	a.EmailVerifiedAt = &at
}

// Apply assigns every non-null scalar attribute. Fields Account does not know
// and structured values (JSON objects and arrays) are ignored.
func (a *Account) Apply(attrs Attributes) error {
	for field, v := range attrs {
		switch v.(type) {
		case nil, map[string]any, []any:
			continue
		}
		set, ok := accountSetters[field]
		if !ok {
			continue
		}
		if err := set(a, v); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidAttribute, field, err)
		}
	}
	return nil
}

func stringSetter(assign func(*Account, string)) accountSetter {
	return func(a *Account, v any) error {
		s, err := scalarString(v)
		if err != nil {
			return err
		}
		assign(a, s)
		return nil
	}
}

// textSetter is stringSetter for display text; markup is stripped.
func textSetter(assign func(*Account, string)) accountSetter {
	return stringSetter(func(a *Account, s string) {
		assign(a, sanitizer.StripHTML(s))
	})
}

func scalarString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		return "", fmt.Errorf("unsupported type %T", v)
	}
}

var _ User = (*Account)(nil)

package notify

import (
	"context"

	"github.com/sokoline/sokoline-backend/internal/modules/user"
	"github.com/sokoline/sokoline-backend/internal/modules/vendor"
)

// repoDirectory resolves contacts from the user and vendor repositories.
type repoDirectory struct {
	users   user.Repository
	vendors vendor.Repository
}

// NewDirectory creates a contact directory backed by the platform's user and
// vendor stores.
func NewDirectory(users user.Repository, vendors vendor.Repository) Directory {
	return &repoDirectory{users: users, vendors: vendors}
}

func (d *repoDirectory) ContactForUser(ctx context.Context, userID string) (Contact, error) {
	u, err := d.users.GetUserByID(ctx, userID)
	if err != nil {
		return Contact{}, err
	}
	return Contact{Email: u.Email, Phone: u.Phone}, nil
}

func (d *repoDirectory) ContactForVendor(ctx context.Context, vendorID string) (Contact, error) {
	v, err := d.vendors.GetVendorByID(ctx, vendorID)
	if err != nil {
		return Contact{}, err
	}
	contact := Contact{Phone: v.Phone}
	// the owner's account email is the vendor's inbox
	if u, err := d.users.GetUserByID(ctx, v.OwnerID.String()); err == nil {
		contact.Email = u.Email
	}
	return contact, nil
}

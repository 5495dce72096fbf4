package accounts

import "strings"

// AuthorizeSoftDelete checks whether caller may deactivate targetID.
// A self delete requires the caller to own the account and developer
// accounts may not deactivate themselves. Any other soft delete requires
// an elevated caller.
func AuthorizeSoftDelete(caller *Caller, targetID string, isSelfDelete bool) error {
	if caller == nil {
		return NewError(ErrTokenMissingOrMalformed, nil, nil)
	}

	if isSelfDelete {
		if caller.Subject != targetID {
			return NewError(ErrNotAccountOwner, nil, map[string]any{
				"subject": caller.Subject,
				"target":  targetID,
			})
		}
		if caller.IsDeveloper {
			return NewError(ErrSelfDeleteForbidden, nil, map[string]any{
				"subject": caller.Subject,
			})
		}
		return nil
	}

	if !caller.IsElevated() {
		return NewError(ErrInsufficientPrivilege, nil, map[string]any{
			"subject": caller.Subject,
			"target":  targetID,
		})
	}
	return nil
}

// AuthorizeHardDelete requires an elevated caller that is not the target.
func AuthorizeHardDelete(caller *Caller, targetID string) error {
	if caller == nil {
		return NewError(ErrTokenMissingOrMalformed, nil, nil)
	}
	if !caller.IsElevated() {
		return NewError(ErrInsufficientPrivilege, nil, map[string]any{
			"subject": caller.Subject,
			"target":  targetID,
		})
	}
	if caller.Subject == strings.TrimSpace(targetID) {
		return NewError(ErrSelfHardDelete, nil, map[string]any{
			"subject": caller.Subject,
		})
	}
	return nil
}

// AuthorizeStatusChange prevents callers from editing their own flags.
// A nil caller is allowed for unauthenticated deployments.
func AuthorizeStatusChange(caller *Caller, targetID string) error {
	if caller == nil {
		return nil
	}
	if caller.Subject == strings.TrimSpace(targetID) {
		return NewError(ErrSelfStatusChange, nil, map[string]any{
			"subject": caller.Subject,
		})
	}
	return nil
}

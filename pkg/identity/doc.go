// Package identity reconciles OAuth2 provider profiles with local user records and
// keeps provider tokens encrypted at rest.
//
// A [Mapping] translates provider attribute names into local field names. The
// [Reconciler] looks a user up by provider id first and by email second, creates it
// when auto-creation is enabled, assigns every non-null mapped attribute through
// [User.Apply] and saves it via a [Repository]. [Account] is the default record.
//
// [TokenService] encrypts access and refresh tokens with an [encryption.Encryptor]
// and upserts one [StoredToken] per user through a [TokenStore].
//
//	rec := identity.NewReconciler(users, identity.WithAutoCreate(false))
//	user, err := rec.Reconcile(ctx, profile)
//	if errors.Is(err, identity.ErrUserNotFound) {
//		// unknown user, creation disabled
//	}
//
//	tokens := identity.NewTokenService(store, enc)
//	err = tokens.StoreTokens(ctx, user.UserID(), tokenSet)
package identity

// Package auth provides authentication and authorisation for the Study
// Social platform.
//
// It implements a 3-tier role model (user → admin → super_admin) with:
//   - Argon2id password hashing with constant-time verification
//   - Stateless HS256 JWT access tokens (no server-side session store)
//   - A SQLite-backed identity store with atomic username/email uniqueness
//   - Static role-permission mapping (compile-time, no database lookup)
//
// Token and credential failures are deliberately opaque: a login with a
// wrong password and a login with an unknown username produce the same
// error, and an expired token is indistinguishable from a tampered one.
// Internal logs retain the distinction.
package auth

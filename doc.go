// Package accounts implements account registration, email verification,
// password recovery and JWT sessions on top of Bun repositories, plus the
// Fiber endpoints that expose them.
//
// Account lifecycle:
//   - Register stores an unverified account with a single use verification
//     token and emails it through the Notifier. Login is refused until
//     VerifyEmail consumes the token.
//   - Invite creates an account on behalf of an admin. The invitee picks a
//     password through ActivateAccount, which also verifies the email.
//   - ForgotPassword answers identically for known and unknown emails.
//     ResetPassword consumes the token inside a transaction so two
//     concurrent resets cannot both succeed.
//
// Sessions:
//   - Login mints a short lived access token and, with remember me, a
//     refresh token that is persisted on the account. Refresh only accepts
//     the stored token, so Logout and a newer Login revoke older ones.
//   - SessionResolver turns an access token into an AccountView for the
//     guard middleware. Deleted accounts stop resolving immediately.
//
// Activity sinks:
//   - ActivitySink receives lifecycle and login events. Sinks run best
//     effort, errors are logged and never fail the operation.
package accounts

// Package authkit provides the session and authorization core for API
// front-ends: a refreshing HTTP transport, a persisted authentication session
// and a role/permission engine deriving access decisions from a flat role
// hierarchy plus per-user overrides.
//
// The package glues four components together:
//  1. store – durable key/value persistence for the session and permission
//     snapshots (in-memory, afs file-backed or scy-encrypted),
//  2. permission – pure authorization decisions from role sets and overrides,
//  3. session – the anonymous/authenticated/expired state machine and
//  4. transport – bearer attachment with a single coordinated
//     refresh-and-retry cycle per request.
//
// New assembles all of them against an identity service base URL:
//
//	core, _ := authkit.New(ctx, &authkit.Config{BaseURL: "https://api.example.com/api"})
//	result := core.Session.Login(ctx, session.Credentials{Username: "admin", Password: "…"})
//	if result.OK && core.Permissions.HasPermission(permission.DataRead) { /* … */ }
//
// Every instance owns its state; there are no process-wide singletons.
package authkit

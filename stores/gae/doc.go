//go:build !wasm
// +build !wasm

// Package gae provides Google Cloud Datastore implementations of the
// authcore account and recovery token stores. It supports multi-tenancy
// through Datastore namespaces.
//
// # Datastore Kinds
//
//   - Account: one entity per account, keyed by account id
//   - AccountKey: uniqueness claims keyed by "username:<name>",
//     "email:<email>" or "provider:<provider>:<subject>", each pointing at
//     the owning account id
//   - RecoveryToken: email confirmation and password reset tokens, keyed by
//     the token hash
//
// Account creation claims every AccountKey and writes the Account inside one
// transaction, so a concurrent registration of the same email loses with
// authcore.ErrDuplicate.
//
// # Namespacing
//
// Pass a namespace when creating stores to isolate data between tenants:
//
//	accounts := gae.NewAccountStore(client, "tenant-123")
//	tokens := gae.NewTokenStore(client, "tenant-123")
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	accounts := gae.NewAccountStore(client, "") // default namespace
//	tokens := gae.NewTokenStore(client, "")
package gae

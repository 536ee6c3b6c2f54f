// Package realm provides the client side of the directory realm
// authority: domain-controller lookups, the non-mutating membership
// probe, and the join/leave/testjoin commands.
//
// The Authority interface abstracts the external tooling so the
// lifecycle executors and their tests can substitute fakes. The Exec
// implementation shells out to the samba net utility with kerberos
// credentials from the system ticket cache.
package realm

// Package social talks to the proprietary social login proxy that brokers
// Google and GitHub sign-in: login URL construction, code exchange,
// refresh, logout and account deletion.
package social

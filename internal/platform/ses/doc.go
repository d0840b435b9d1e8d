// Package ses implements capability.Notifier over Amazon SES (API v2).
//
// Only the email channel is supported. SES rejections caused by the
// message or the account configuration are permanent; throttling and
// transport failures are transient.
package ses

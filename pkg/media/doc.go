// Package media resolves the opaque media references attached to posts into
// URLs a publishing platform can fetch.
//
// Platform APIs like the Facebook Graph API take image URLs, not uploads, so
// media stored privately has to be exposed through a short-lived link at
// publish time. S3Resolver presigns GET requests against an S3 bucket for
// that; Passthrough accepts references that already are absolute URLs.
package media

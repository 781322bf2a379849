// Package facebook implements the publisher capability for Facebook Pages
// and Groups via the Graph API.
//
// A post's account field selects the target: a Page id, or a "group:" prefix
// followed by the group id. The credential provider supplies the matching
// token, a page access token for Pages and a user token with
// publish_to_groups for Groups. For Pages the client picks the post format
// automatically: a media reference becomes a photo post, a URL detected in
// the text becomes a link post with preview, and everything else is a plain
// text post. Group feeds take text with an optional link, so a media
// reference there is attached as a link. Personal profile posting is not
// supported by the Graph API.
//
// Graph error codes are mapped into the publisher taxonomy so the dispatcher
// can make retry decisions without knowing anything Facebook-specific.
package facebook

// Package http serves the reader API: listings, search, comic details,
// chapter pages, an image proxy and reader preferences.
//
// Errors share one JSON shape (ErrorResponse). A captcha wall is reported as
// 403 with captcha_url so the client can send the user there.
package http

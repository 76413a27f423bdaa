// Package models defines domain entities and persistence interfaces for the ytlink service.
//
// Persistent entities:
//   - [User] : local identity, created the first time a channel is linked
//   - [YouTubeAccount] : the linked channel with OAuth tokens and counters
//   - [ChannelSnapshot] : daily channel counters with growth against the previous day
//   - [SavedVideo] and [VideoStat] : a user's video library and its daily counters
//   - [SearchRecord] : search history
//   - [UploadJob] : a video upload and its lifecycle
//   - [OAuthErrorLog] : failed OAuth steps kept for diagnosis
//
// All persistent entities embed [Base] and implement [Model]. The [Repository] interface
// defines the CRUD operations every repository provides.
package models

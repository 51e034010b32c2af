// Package routes defines HTTP route constants for the application.
package routes

const (
	RobotsPath = "/robots.txt"
	HealthPath = "/healthz"

	// SSE
	SSEPath = "/sse"

	// Drafts
	APIDrafts       = "/api/drafts"
	APIDraft        = "/api/drafts/{key}"
	APIDraftImport  = "/api/drafts/{key}/import"
	APIDraftAssets  = "/api/drafts/{key}/assets"
	APIDraftCover   = "/api/drafts/{key}/cover"
	APIDraftCache   = "/api/drafts/{key}/cache"
	APIDraftPreview = "/api/drafts/{key}/preview"
	APIDraftSave    = "/api/drafts/{key}/save"
	APIDraftPublish = "/api/drafts/{key}/publish"
	APIDraftFiles   = "/api/drafts/{key}/files"
	APIDraftCancel  = "/api/drafts/{key}/cancel"
	APIDraftDismiss = "/api/drafts/{key}/dismiss"
	APIDraftRestore = "/api/drafts/{key}/restore"

	// Articles
	APIArticles    = "/api/articles"
	APIArticle     = "/api/articles/{id}"
	APIArticleEdit = "/api/articles/{id}/edit"

	// Local assets served to previews
	PreviewPrefix = "/preview/"
	PreviewAsset  = "/preview/{token}"
)

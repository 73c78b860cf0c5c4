package domain

// Article is a help-center document.
type Article struct {
	ArticleID string `json:"article_id" yaml:"article_id"`
	Title     string `json:"title" yaml:"title"`
	Content   string `json:"content" yaml:"content"`
	Tags      string `json:"tags" yaml:"tags"`
}

// RetrievalResult is an article scored against a query. Confidence is in [0,1].
type RetrievalResult struct {
	ArticleID  string  `json:"article_id"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Tags       string  `json:"tags"`
	Confidence float64 `json:"confidence"`
}

// Package domain holds the pipeline's named records. Broker fields are
// string maps at the wire boundary; everywhere else an event is one of
// these structs.
package domain

// RawEmailEvent is what the Poller publishes to raw_emails.v1.
type RawEmailEvent struct {
	TraceID     string `json:"trace_id"`
	MailboxID   string `json:"mailbox_id"`
	ExternalID  string `json:"external_id"`
	ReceivedTS  int64  `json:"received_ts"`
	IdempKey    string `json:"idemp_key"`
	From        string `json:"from"`
	Subject     string `json:"subject"`
	RawEmailB64 string `json:"raw_email_b64"`
}

// NormalizedEmailEvent is what the Normalizer publishes to
// emails.normalized.v1.
type NormalizedEmailEvent struct {
	TraceID     string `json:"trace_id"`
	MailboxID   string `json:"mailbox_id"`
	IdempKey    string `json:"idemp_key"`
	From        string `json:"from"`
	Subject     string `json:"subject"`
	ExternalID  string `json:"external_id"`
	ReceivedTS  int64  `json:"received_ts"`
	TextContent string `json:"text_content"`
	BodyHash    string `json:"body_hash"`
}

// RoutedEmailEvent is what the SemanticFilter publishes to
// emails.to_classify.v1 — the normalized fields plus routing metadata.
type RoutedEmailEvent struct {
	NormalizedEmailEvent
	FilterWatcherID   string `json:"filter_watcher_id"`
	FilterWatcherName string `json:"filter_watcher_name"`
	FilterQueryID     string `json:"filter_query_id"`
	FilterQueryText   string `json:"filter_query_text"`
	FilterSimilarity  string `json:"filter_similarity"`
}

// ClassifiedEmailEvent is what the Classifier publishes to
// emails.classified.v1.
type ClassifiedEmailEvent struct {
	TraceID       string `json:"trace_id"`
	MailboxID     string `json:"mailbox_id"`
	IdempKey      string `json:"idemp_key"`
	BodyHash      string `json:"body_hash"`
	Subject       string `json:"subject"`
	ExternalID    string `json:"external_id"`
	ReceivedTS    int64  `json:"received_ts"`
	Class         string `json:"class"`
	Confidence    float64 `json:"confidence"`
	WatcherID     string `json:"watcher_id"`
	ExtractedData string `json:"extracted_data"`
}

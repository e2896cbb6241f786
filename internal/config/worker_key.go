package config

// WorkerKeyStruct names the event topics and consumer groups.
type WorkerKeyStruct struct {
	FormEventsTopic     string
	ResponseFeedGroup   string
	ResponseFeedHandler string
}

var WorkerKey = &WorkerKeyStruct{
	FormEventsTopic:     "form-events",
	ResponseFeedGroup:   "response-feed",
	ResponseFeedHandler: "response_feed_worker",
}

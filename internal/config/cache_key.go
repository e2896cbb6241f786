package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// FormKey returns the cache key for a form's JSON document
func (r *CacheKeyStruct) FormKey(formID string) string {
	return fmt.Sprintf("form:%s", formID)
}

// FormResponseCountKey returns the counter key for a form's submissions
func (r *CacheKeyStruct) FormResponseCountKey(formID string) string {
	return fmt.Sprintf("form:%s:response_count", formID)
}

// FormCountedEventKey marks a submission event as already counted
func (r *CacheKeyStruct) FormCountedEventKey(formID, eventID string) string {
	return fmt.Sprintf("form:%s:counted:%s", formID, eventID)
}

// FormResponsesChannel returns the Redis PubSub channel carrying a form's live feed
func (r *CacheKeyStruct) FormResponsesChannel(formID string) string {
	return fmt.Sprintf("form:%s:responses", formID)
}

var CacheKey = NewCacheKeyStruct()

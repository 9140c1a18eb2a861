package leads

import "github.com/alejandria/sales-ai-platform/internal/conversation"

var tagCategories = map[conversation.LeadTag]Category{
	conversation.TagFarewell:                    CategoryNone,
	conversation.TagEducational:                 CategoryMarketing,
	conversation.TagOneOffJob:                   CategoryQuote,
	conversation.TagImmediateDocumentRequest:    CategoryQuote,
	conversation.TagQuoteDocumentRequest:        CategoryQuote,
	conversation.TagDocumentReceivedQualified:   CategoryQuote,
	conversation.TagCold:                        CategoryCold,
	conversation.TagPreQualifyBeforePrice:       CategoryCold,
	conversation.TagDocumentReceivedUnqualified: CategoryCold,
	conversation.TagWarm:                        CategoryWarm,
	conversation.TagFatal:                       CategoryError,
}

// Classify maps a turn's lead tag to its CRM category. Unknown tags are cold.
func Classify(tag conversation.LeadTag) Category {
	if c, ok := tagCategories[tag]; ok {
		return c
	}
	return CategoryCold
}

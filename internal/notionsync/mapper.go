package notionsync

import (
	"time"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/statement-insights/internal/domain"
	"github.com/dvloznov/statement-insights/internal/summary"
)

// Property names of the review database.
const (
	PropAnomalyID     = "Anomaly ID"
	PropUploadID      = "Upload ID"
	PropTransactionID = "Transaction ID"
	PropRule          = "Rule"
	PropSeverity      = "Severity"
	PropStatus        = "Status"
	PropDescription   = "Description"
	PropAmount        = "Amount"
	PropDate          = "Date"
	PropCategory      = "Category"
	PropDetail        = "Detail"
	PropReviewed      = "Reviewed"
)

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{{
		Type:      notionapi.ObjectTypeText,
		Text:      &notionapi.Text{Content: s},
		PlainText: s,
	}}
}

func dateOf(t time.Time) *notionapi.DateObject {
	d := notionapi.Date(t)
	return &notionapi.DateObject{Start: &d}
}

// AnomalyToNotionProperties builds the page of an anomaly. line describes
// the flagged transaction and may be nil when it is not in the report.
func AnomalyToNotionProperties(a domain.Anomaly, line *summary.Line) notionapi.Properties {
	props := notionapi.Properties{
		PropAnomalyID:     notionapi.TitleProperty{Title: richText(a.ID)},
		PropUploadID:      notionapi.RichTextProperty{RichText: richText(a.UploadID)},
		PropTransactionID: notionapi.RichTextProperty{RichText: richText(a.TransactionID)},
		PropRule:          notionapi.SelectProperty{Select: notionapi.Option{Name: a.RuleName}},
		PropSeverity:      notionapi.SelectProperty{Select: notionapi.Option{Name: a.Severity.String()}},
		PropStatus:        notionapi.SelectProperty{Select: notionapi.Option{Name: string(a.Status)}},
	}
	if a.Detail != "" {
		props[PropDetail] = notionapi.RichTextProperty{RichText: richText(a.Detail)}
	}
	if a.ReviewedAt != nil {
		props[PropReviewed] = notionapi.DateProperty{Date: dateOf(*a.ReviewedAt)}
	}

	if line != nil {
		props[PropDescription] = notionapi.RichTextProperty{RichText: richText(line.Description)}
		props[PropAmount] = notionapi.NumberProperty{Number: line.Amount.InexactFloat64()}
		props[PropDate] = notionapi.DateProperty{Date: dateOf(line.TxnDate.In(time.UTC))}
		props[PropCategory] = notionapi.SelectProperty{Select: notionapi.Option{Name: line.CategoryName}}
	}
	return props
}

// StatusProperties is the update sent when only the review state changed.
func StatusProperties(a domain.Anomaly) notionapi.Properties {
	props := notionapi.Properties{
		PropStatus: notionapi.SelectProperty{Select: notionapi.Option{Name: string(a.Status)}},
	}
	if a.ReviewedAt != nil {
		props[PropReviewed] = notionapi.DateProperty{Date: dateOf(*a.ReviewedAt)}
	}
	return props
}

// pageText reads a title or rich text property. Pages decoded from the API
// hold pointer properties; pages built locally hold values.
func pageText(page notionapi.Page, name string) string {
	var parts []notionapi.RichText
	switch p := page.Properties[name].(type) {
	case *notionapi.TitleProperty:
		parts = p.Title
	case notionapi.TitleProperty:
		parts = p.Title
	case *notionapi.RichTextProperty:
		parts = p.RichText
	case notionapi.RichTextProperty:
		parts = p.RichText
	}
	if len(parts) == 0 {
		return ""
	}
	if parts[0].PlainText != "" {
		return parts[0].PlainText
	}
	if parts[0].Text != nil {
		return parts[0].Text.Content
	}
	return ""
}

func pageSelect(page notionapi.Page, name string) string {
	switch p := page.Properties[name].(type) {
	case *notionapi.SelectProperty:
		return p.Select.Name
	case notionapi.SelectProperty:
		return p.Select.Name
	}
	return ""
}

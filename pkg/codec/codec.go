// Package codec converts between Redmine XML bodies and model records.
//
// Struct binding uses encoding/xml. The issue write document and the 422
// error list are handled with etree, since their shape differs from the read
// representation.
package codec

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/Sternrassler/redmine-connector/pkg/apierr"
	"github.com/Sternrassler/redmine-connector/pkg/model"
	"github.com/beevik/etree"
)

// Decode unmarshals an XML body into v.
func Decode(body []byte, v any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return apierr.New(apierr.KindDataConversion, "empty response body")
	}
	if err := xml.Unmarshal(body, v); err != nil {
		return apierr.Wrap(apierr.KindDataConversion,
			"problem while converting XML data from Redmine server", err)
	}
	return nil
}

// Encode marshals v into an XML document with declaration.
func Encode(v any) ([]byte, error) {
	out, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, apierr.Wrap(apierr.KindDataConversion,
			"problem while converting objects to XML data", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// EncodeIssue renders the issue write document Redmine expects for
// POST /issues.xml and PUT /issues/<id>.xml, where references are sent as
// <project_id>, <tracker_id>, ... instead of nested elements.
func EncodeIssue(issue *model.Issue) ([]byte, error) {
	if issue == nil {
		return nil, apierr.New(apierr.KindIllegalArgument, "issue must not be nil")
	}
	if defects := issue.Validate(); len(defects) > 0 {
		return nil, apierr.Newf(apierr.KindIllegalArgument,
			"issue does not have all required properties set: %s", strings.Join(defects, "; "))
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("issue")

	root.CreateElement("project_id").SetText(formatID(issue.Project.ID))
	if issue.Parent != nil {
		root.CreateElement("parent_issue_id").SetText(formatID(issue.Parent.ID))
	}
	root.CreateElement("subject").SetText(issue.Subject)
	if issue.Tracker != nil {
		root.CreateElement("tracker_id").SetText(formatID(issue.Tracker.ID))
	}
	if issue.Status != nil {
		root.CreateElement("status_id").SetText(formatID(issue.Status.ID))
	}
	root.CreateElement("priority_id").SetText(formatID(issue.Priority.ID))
	if issue.StartDate != nil && !issue.StartDate.IsZero() {
		root.CreateElement("start_date").SetText(issue.StartDate.Format("2006-01-02"))
	}
	if issue.DueDate != nil && !issue.DueDate.IsZero() {
		root.CreateElement("due_date").SetText(issue.DueDate.Format("2006-01-02"))
	}
	if issue.AssignedTo != nil {
		root.CreateElement("assigned_to_id").SetText(formatID(issue.AssignedTo.ID))
	}
	if issue.EstimatedHours != nil {
		root.CreateElement("estimated_hours").SetText(strconv.FormatFloat(*issue.EstimatedHours, 'f', -1, 64))
	}
	// Redmine ignores spent_hours on write unless it is non-zero.
	if issue.SpentHours != nil && *issue.SpentHours != 0 {
		root.CreateElement("spent_hours").SetText(strconv.FormatFloat(*issue.SpentHours, 'f', -1, 64))
	}
	if issue.DoneRatio != nil {
		root.CreateElement("done_ratio").SetText(strconv.Itoa(*issue.DoneRatio))
	}
	if strings.TrimSpace(issue.Description) != "" {
		root.CreateElement("description").SetText(issue.Description)
	}

	doc.Indent(2)
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, apierr.Wrap(apierr.KindDataConversion, "write issue document", err)
	}
	return out, nil
}

// DecodeErrors extracts the messages of a 422 body:
//
//	<errors type="array"><error>Subject cannot be blank</error></errors>
func DecodeErrors(body []byte) ([]string, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, apierr.Wrap(apierr.KindDataConversion, "parse error list", err)
	}

	root := doc.Root()
	if root == nil || root.Tag != "errors" {
		return nil, apierr.New(apierr.KindDataConversion, "response is not an <errors> document")
	}

	messages := make([]string, 0, len(root.ChildElements()))
	for _, el := range root.SelectElements("error") {
		if text := strings.TrimSpace(el.Text()); text != "" {
			messages = append(messages, text)
		}
	}
	return messages, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

package email

import (
	"bytes"
	"fmt"
	"html/template"
)

var invoiceTemplate = template.Must(template.New("invoice").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Helvetica, Arial, sans-serif; color: #222;">
  <p>Dear {{.CustomerName}},</p>
  <p>please find attached invoice <strong>{{.InvoiceNumber}}</strong> issued on {{.IssueDate}}.</p>
  <table cellpadding="4" style="border-collapse: collapse;">
    <tr><td>Subtotal</td><td align="right">{{.Subtotal}}</td></tr>
    <tr><td>Tax</td><td align="right">{{.Tax}}</td></tr>
    {{- if .Discount}}
    <tr><td>Discount</td><td align="right">-{{.Discount}}</td></tr>
    {{- end}}
    <tr><td><strong>Total due</strong></td><td align="right"><strong>{{.Total}}</strong></td></tr>
  </table>
  <p>Payment is due by <strong>{{.DueDate}}</strong>.{{if .PDFURL}} You can also download the invoice <a href="{{.PDFURL}}">here</a>.{{end}}</p>
  <p>Kind regards,<br>{{.Company}}</p>
</body>
</html>`))

var reminderTemplate = template.Must(template.New("reminder").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Helvetica, Arial, sans-serif; color: #222;">
  <p>Dear {{.CustomerName}},</p>
  {{- if eq .Urgency "critical"}}
  <p><strong>Final notice:</strong> invoice {{.InvoiceNumber}} is now {{.DaysOverdue}} days overdue.</p>
  {{- else if eq .Urgency "high"}}
  <p>Invoice {{.InvoiceNumber}} is {{.DaysOverdue}} days overdue and requires your urgent attention.</p>
  {{- else}}
  <p>This is a friendly reminder that invoice {{.InvoiceNumber}} was due on {{.DueDate}} ({{.DaysOverdue}} days ago).</p>
  {{- end}}
  <p>Outstanding amount: <strong>{{.Outstanding}}</strong>.</p>
  <p>If you have already paid, please disregard this message.</p>
  <p>Kind regards,<br>{{.Company}}</p>
</body>
</html>`))

type invoiceData struct {
	CustomerName  string
	InvoiceNumber string
	IssueDate     string
	DueDate       string
	Subtotal      string
	Tax           string
	Discount      string
	Total         string
	PDFURL        string
	Company       string
}

type reminderData struct {
	CustomerName  string
	InvoiceNumber string
	DueDate       string
	DaysOverdue   int
	Urgency       string
	Outstanding   string
	Company       string
}

func render(t *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s template: %w", t.Name(), err)
	}
	return buf.String(), nil
}

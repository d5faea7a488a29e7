package heytelecom

import (
	"context"
	"log/slog"
	"strings"

	"heytelecom-backend/lib/browser"
)

// extractLatestInvoice navigates to the billing page and reads the latest
// invoice section. Fields whose label is missing are simply omitted.
func (c *Client) extractLatestInvoice(ctx context.Context) *Invoice {
	ctx, span := tracer.Start(ctx, "client:extractLatestInvoice")
	defer span.End()

	err := c.session.Goto(ctx, c.invoicesUrl())
	if err != nil {
		slog.WarnContext(ctx, "failed to open billing page", "err", err)
		return nil
	}
	c.waitReady(ctx)

	err = c.session.WaitForSelector(ctx, selInvoiceSection, c.waitTimeout)
	if err != nil {
		slog.InfoContext(ctx, "no invoice found")
		return nil
	}

	section := c.session.Locate(selInvoiceSection)
	if section.Count() == 0 {
		return nil
	}

	invoice := &Invoice{}
	if text, ok := invoiceField(section, labelInvoiceAmount); ok {
		invoice.AmountEur = parsePrice(text)
	}
	if text, ok := invoiceField(section, labelInvoiceStatus); ok {
		invoice.Status = text
		invoice.Paid = strings.EqualFold(text, "betaald")
	}
	if text, ok := invoiceField(section, labelInvoiceDate); ok {
		invoice.Date = parseDate(text)
	}
	if text, ok := invoiceField(section, labelInvoiceDueDate); ok {
		invoice.DueDate = parseDate(text)
	}
	return invoice
}

// invoiceField reads the sibling right after a field title. "Datum" must
// not be matched case-insensitively, "Vervaldatum" contains it.
func invoiceField(section browser.ElementSet, label string) (string, bool) {
	value := section.Locate(selInvoiceTitle).FilterText(label).NextSibling().Nth(0)
	if value.Count() == 0 {
		return "", false
	}
	text, err := value.InnerText()
	if err != nil {
		return "", false
	}
	return text, true
}

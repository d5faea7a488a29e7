package heytelecom

import (
	"context"
	"log/slog"

	"heytelecom-backend/lib/browser"

	"go.opentelemetry.io/otel/attribute"
)

// productIdentifier derives the product's stable key from its rendered
// content, in fixed precedence order.
func productIdentifier(entry browser.ElementSet) ProductIdentifier {
	phone := entry.Locate(selTariffNumber)
	if phone.Count() > 0 {
		text, err := phone.InnerText()
		if err == nil && text != "" {
			return ProductIdentifier{Kind: IdentifierPhone, Value: text}
		}
	}

	easySwitch := entry.Locate(selInfoTitle).FilterText(labelEasySwitch).NextSibling()
	if easySwitch.Count() > 0 {
		text, err := easySwitch.InnerText()
		if err == nil && text != "" {
			return ProductIdentifier{Kind: IdentifierEasySwitch, Value: text}
		}
	}

	tariff := entry.Locate(selTariffName)
	if tariff.Count() > 0 {
		text, err := tariff.InnerText()
		if err == nil && text != "" {
			return ProductIdentifier{Kind: IdentifierTariff, Value: text}
		}
	}

	return ProductIdentifier{}
}

// findProductByIdentifier re-scans the freshly rendered product list for an
// entry whose derived identifier matches. Element handles from before a
// navigation are stale, identity has to be re-derived from content. On a
// collision the first match in document order wins.
func (c *Client) findProductByIdentifier(id ProductIdentifier) browser.ElementSet {
	entries := c.session.Locate(selProductItem)
	count := entries.Count()
	for i := 0; i < count; i++ {
		entry := entries.Nth(i)
		if productIdentifier(entry) == id {
			return entry
		}
	}
	return nil
}

// labeledValue reads the text of the element right after a details label,
// the portal renders every static field as <label><value> siblings.
func labeledValue(entry browser.ElementSet, label string) (string, bool) {
	value := entry.Locate(selInfoTitle).FilterText(label).NextSibling().Nth(0)
	if value.Count() == 0 {
		return "", false
	}
	text, err := value.InnerText()
	if err != nil {
		return "", false
	}
	return text, true
}

func extractProductShell(entry browser.ElementSet) Product {
	product := Product{
		Identifier: productIdentifier(entry),
	}

	phone := entry.Locate(selTariffNumber)
	if phone.Count() > 0 {
		text, err := phone.InnerText()
		if err == nil {
			product.PhoneNumber = text
		}
	}

	tariff := entry.Locate(selTariffName)
	if tariff.Count() > 0 {
		text, err := tariff.InnerText()
		if err == nil {
			product.Tariff = text
		}
	}

	if text, ok := labeledValue(entry, labelEasySwitch); ok {
		product.EasySwitchNumber = text
	}
	if text, ok := labeledValue(entry, labelContractStart); ok && text != "" {
		product.ContractStartDate = parseDate(text)
	}
	if text, ok := labeledValue(entry, labelPrice); ok {
		product.PricePerMonthEur = parsePrice(text)
	}

	return product
}

// extractProducts lists all products in two passes: first the static
// fields of every entry, then one navigation round trip per product for
// its usage details. The second pass is strictly sequential, every click
// mutates the shared current page.
func (c *Client) extractProducts(ctx context.Context) []Product {
	ctx, span := tracer.Start(ctx, "client:extractProducts")
	defer span.End()

	err := c.session.WaitForSelector(ctx, selProductItem, c.waitTimeout)
	if err != nil {
		slog.WarnContext(ctx, "no products found on the page", "err", err)
		return nil
	}

	entries := c.session.Locate(selProductItem)
	count := entries.Count()
	span.SetAttributes(attribute.Int("product_count", count))
	slog.DebugContext(ctx, "enumerating products", "count", count)

	products := make([]Product, 0, count)
	for i := 0; i < count; i++ {
		products = append(products, extractProductShell(entries.Nth(i)))
	}

	for i := range products {
		id := products[i].Identifier
		if id.IsZero() {
			slog.WarnContext(ctx, "product has no derivable identifier, skipping usage", "index", i)
			continue
		}

		entry := c.findProductByIdentifier(id)
		if entry == nil {
			slog.WarnContext(
				ctx, "could not re-locate product after navigation",
				"kind", id.Kind.String(), "value", id.Value,
			)
			continue
		}

		link := entry.Locate(selUsageLink)
		if link.Count() == 0 {
			continue
		}
		slog.DebugContext(ctx, "extracting usage", "kind", id.Kind.String(), "value", id.Value)
		err := link.Click(ctx)
		if err != nil {
			slog.WarnContext(ctx, "failed to open usage details", "err", err)
			continue
		}

		usage := c.extractUsage(ctx)
		if usage != nil {
			products[i].Usage = usage
		}

		err = c.session.Goto(ctx, c.productsUrl())
		if err != nil {
			slog.WarnContext(ctx, "failed to navigate back to product list", "err", err)
			break
		}
		c.waitReady(ctx)
		err = c.session.WaitForSelector(ctx, selProductItem, c.waitTimeout)
		if err != nil {
			slog.WarnContext(ctx, "product list did not come back", "err", err)
			break
		}
	}

	return products
}

package heytelecom

import (
	"context"
	"log/slog"
	"strings"
)

// consumptionBlock reads one usage category. A block missing either its
// limit or its usage sub-element is dropped whole, partial category data
// is never emitted.
func (c *Client) consumptionBlock(selector string) (used, limit, lastUpdate string, ok bool) {
	block := c.session.Locate(selector)
	if block.Count() == 0 {
		return "", "", "", false
	}

	limitEl := block.Locate(selBlockLimit)
	usedEl := block.Locate(selBlockUsage)
	if limitEl.Count() == 0 || usedEl.Count() == 0 {
		return "", "", "", false
	}

	limit, err := limitEl.InnerText()
	if err != nil {
		return "", "", "", false
	}
	used, err = usedEl.InnerText()
	if err != nil {
		return "", "", "", false
	}

	updateEl := block.Locate(selBlockLastUpdate)
	if updateEl.Count() > 0 {
		lastUpdate, _ = updateEl.InnerText()
	}
	return used, limit, lastUpdate, true
}

// extractUsage reads the usage detail view the session is expected to be
// on. When the navigation did not actually land there, no data is
// returned for this product.
func (c *Client) extractUsage(ctx context.Context) *UsageSnapshot {
	ctx, span := tracer.Start(ctx, "client:extractUsage")
	defer span.End()

	err := c.session.WaitForURL(ctx, usageUrlMarker, c.waitTimeout)
	if err != nil {
		slog.DebugContext(ctx, "usage detail url did not appear", "err", err)
	}
	err = c.session.WaitForSelector(ctx, selConsumption, c.waitTimeout)
	if err != nil {
		slog.DebugContext(ctx, "consumption section did not appear", "err", err)
	}
	c.waitReady(ctx)

	if !strings.Contains(c.session.URL(), usageUrlMarker) {
		slog.WarnContext(ctx, "not on a usage detail view, skipping", "url", c.session.URL())
		return nil
	}

	snapshot := &UsageSnapshot{}

	dateRange := c.session.Locate(selPeriodRange)
	if dateRange.Count() > 0 {
		text, err := dateRange.InnerText()
		if err == nil {
			snapshot.Period = parsePeriod(text)
		}
	}

	// mobile and fixed line data are mutually exclusive per product and
	// share the one data slot
	if used, limit, update, ok := c.consumptionBlock(selDataBlock); ok {
		snapshot.Data = &UsageCategory{
			Used:       parseDataAmount(used),
			Limit:      parseDataAmount(limit),
			Unlimited:  isUnlimited(limit),
			LastUpdate: parseLastUpdate(update),
		}
	}
	if snapshot.Data == nil {
		if used, limit, update, ok := c.consumptionBlock(selFixBlock); ok {
			snapshot.Data = &UsageCategory{
				Used:       parseDataAmount(used),
				Limit:      parseDataAmount(limit),
				Unlimited:  isUnlimited(limit),
				LastUpdate: parseLastUpdate(update),
			}
		}
	}

	// no numeric limit for calls, only the usage and the unlimited flag
	// matter downstream
	if used, limit, update, ok := c.consumptionBlock(selCallsBlock); ok {
		snapshot.Calls = &UsageCategory{
			Used:       parseMinutes(used),
			Unlimited:  isUnlimited(limit),
			LastUpdate: parseLastUpdate(update),
		}
	}

	if used, limit, update, ok := c.consumptionBlock(selSmsBlock); ok {
		snapshot.SmsMms = &SmsUsage{
			Used:       parseSmsCount(used),
			Unlimited:  isUnlimited(limit),
			LastUpdate: parseLastUpdate(update),
		}
	}

	if snapshot.isEmpty() {
		return nil
	}
	return snapshot
}

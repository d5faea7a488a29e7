package heytelecom

import (
	"strings"

	"heytelecom-backend/lib/timezone"
)

type IdentifierKind int

const (
	IdentifierNone IdentifierKind = iota
	IdentifierPhone
	IdentifierEasySwitch
	IdentifierTariff
)

func (k IdentifierKind) String() string {
	switch k {
	case IdentifierPhone:
		return "phone"
	case IdentifierEasySwitch:
		return "easy_switch"
	case IdentifierTariff:
		return "tariff"
	}
	return "none"
}

// ProductIdentifier is the content-derived key used to find "the same
// logical product" again after a navigation invalidated every element
// handle. Exactly one kind is chosen per product, in fixed precedence
// order phone > easy switch > tariff name.
type ProductIdentifier struct {
	Kind  IdentifierKind
	Value string
}

func (id ProductIdentifier) IsZero() bool {
	return id.Kind == IdentifierNone
}

type Product struct {
	Identifier        ProductIdentifier
	PhoneNumber       string
	Tariff            string
	EasySwitchNumber  string
	ContractStartDate string
	PricePerMonthEur  *float64
	Usage             *UsageSnapshot
}

type UsagePeriod struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type UsageCategory struct {
	Used      *float64 `json:"used,omitempty"`
	Limit     *float64 `json:"limit,omitempty"`
	Unlimited bool     `json:"unlimited"`
	// LastUpdate carries an assumed year, see parseLastUpdate.
	LastUpdate string `json:"last_update,omitempty"`
}

type SmsUsage struct {
	Used       *int   `json:"used,omitempty"`
	Unlimited  bool   `json:"unlimited"`
	LastUpdate string `json:"last_update,omitempty"`
}

type UsageSnapshot struct {
	Period *UsagePeriod `json:"period,omitempty"`
	// Data is either mobile or fixed line data, the portal never shows
	// both for one product.
	Data   *UsageCategory `json:"data,omitempty"`
	Calls  *UsageCategory `json:"calls,omitempty"`
	SmsMms *SmsUsage      `json:"sms_mms,omitempty"`
}

func (s *UsageSnapshot) isEmpty() bool {
	return s.Period == nil && s.Data == nil && s.Calls == nil && s.SmsMms == nil
}

type Invoice struct {
	AmountEur *float64
	Status    string
	Paid      bool
	Date      string
	DueDate   string
}

// AccountData is everything one extraction run collects before assembly.
type AccountData struct {
	Products      []Product
	LatestInvoice *Invoice
}

// ExtractionResult is the canonical output document, assembled fresh each
// run. Absent fields are omitted rather than defaulted.
type ExtractionResult struct {
	Provider string        `json:"provider"`
	Account  AccountInfo   `json:"account"`
	Products []ProductView `json:"products"`
	Billing  *Billing      `json:"billing,omitempty"`
}

type AccountInfo struct {
	LastSync string `json:"last_sync"`
}

type ProductView struct {
	Id               string         `json:"id"`
	Type             string         `json:"type"`
	PhoneNumber      string         `json:"phone_number,omitempty"`
	EasySwitchNumber string         `json:"easy_switch_number,omitempty"`
	Tariff           string         `json:"tariff,omitempty"`
	Contract         *ContractView  `json:"contract,omitempty"`
	Usage            *UsageSnapshot `json:"usage,omitempty"`
}

type ContractView struct {
	StartDate        string   `json:"start_date,omitempty"`
	PricePerMonthEur *float64 `json:"price_per_month_eur,omitempty"`
}

type Billing struct {
	LatestInvoice InvoiceView `json:"latest_invoice"`
}

type InvoiceView struct {
	InvoiceId string   `json:"invoice_id,omitempty"`
	AmountEur *float64 `json:"amount_eur,omitempty"`
	Status    string   `json:"status,omitempty"`
	Paid      bool     `json:"paid"`
	Date      string   `json:"date,omitempty"`
	DueDate   string   `json:"due_date,omitempty"`
}

const Provider = "hey!"

// Assemble merges the collected products and invoice into the canonical
// result document.
func Assemble(data AccountData) ExtractionResult {
	products := make([]ProductView, 0, len(data.Products))
	for _, p := range data.Products {
		products = append(products, assembleProduct(p))
	}

	result := ExtractionResult{
		Provider: Provider,
		Account: AccountInfo{
			LastSync: timezone.Now().Format("2006-01-02T15:04:05"),
		},
		Products: products,
	}

	if data.LatestInvoice != nil {
		result.Billing = &Billing{
			LatestInvoice: assembleInvoice(*data.LatestInvoice),
		}
	}
	return result
}

func assembleProduct(p Product) ProductView {
	view := ProductView{
		PhoneNumber:      p.PhoneNumber,
		EasySwitchNumber: p.EasySwitchNumber,
		Tariff:           p.Tariff,
		Usage:            p.Usage,
	}

	switch {
	case p.PhoneNumber != "":
		view.Type = "mobile"
		view.Id = "mobile_" + strings.ReplaceAll(p.PhoneNumber, " ", "")
	case p.EasySwitchNumber != "":
		view.Type = "internet"
		view.Id = "internet_" + p.EasySwitchNumber
	default:
		view.Type = "unknown"
		tariff := p.Tariff
		if tariff == "" {
			tariff = "product"
		}
		view.Id = "unknown_" + tariff
	}

	if p.ContractStartDate != "" || p.PricePerMonthEur != nil {
		view.Contract = &ContractView{
			StartDate:        p.ContractStartDate,
			PricePerMonthEur: p.PricePerMonthEur,
		}
	}
	return view
}

func assembleInvoice(inv Invoice) InvoiceView {
	view := InvoiceView{
		AmountEur: inv.AmountEur,
		Status:    strings.ToLower(inv.Status),
		Paid:      inv.Paid,
		Date:      inv.Date,
		DueDate:   inv.DueDate,
	}
	if inv.Date != "" {
		view.InvoiceId = "INV-" + strings.ReplaceAll(inv.Date, "-", "")
	}
	return view
}

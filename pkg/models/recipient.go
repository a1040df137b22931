package models

// Recipient is one verified campaign target. Order of recipients is
// significant and preserved by the send loop.
type Recipient struct {
	Email      string
	SellerName string // Substituted for SELLER placeholders
	ItemTitle  string // Substituted for ITEM/OFFER placeholders
}

package receipt

import "strings"

// DefaultCategory is used when no keyword matches an item description.
const DefaultCategory = "Groceries"

// categoryKeywords maps budget categories to item-description keywords.
// First match wins, so more specific categories come first.
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"Personal Care", []string{
		"shampoo", "conditioner", "body wash", "lotion", "cream", "deodorant",
		"toothpaste", "toothbrush", "floss", "mouthwash", "razor", "shaving",
		"makeup", "cosmetic", "sanitizer", "medicine", "vitamin", "supplement",
		"bandage", "sunscreen",
	}},
	{"Household", []string{
		"paper towel", "toilet", "tissue", "detergent", "soap", "cleaner",
		"cleaning", "laundry", "dish", "trash", "garbage", "battery",
		"light bulb", "candle", "foil", "wrap", "sponge", "broom", "mop",
	}},
	{"Dining Out", []string{
		"restaurant", "cafe", "coffee shop", "takeout", "delivery", "pizza",
		"burger", "sandwich", "breakfast", "lunch", "dinner", "beer", "wine",
		"liquor", "cocktail", "appetizer", "dessert", "tip", "service charge",
	}},
	{"Transportation", []string{
		"gas", "fuel", "parking", "toll", "fare", "uber", "lyft", "taxi",
		"car wash", "oil change", "tire",
	}},
	{"Entertainment", []string{
		"movie", "theater", "concert", "ticket", "book", "magazine", "music",
		"streaming", "subscription", "toy", "game", "hobby",
	}},
	{"Groceries", []string{
		"milk", "bread", "cheese", "yogurt", "fruit", "vegetable", "meat",
		"chicken", "beef", "pork", "fish", "egg", "cereal", "pasta", "rice",
		"flour", "sugar", "coffee", "tea", "juice", "water", "snack", "chip",
		"cookie", "cracker", "produce", "dairy", "bakery", "deli", "frozen",
		"canned", "spice", "oil", "vinegar", "sauce",
	}},
}

// Categorize assigns a budget category to an item description by keyword.
func Categorize(description string) string {
	description = strings.ToLower(description)
	for _, mapping := range categoryKeywords {
		for _, keyword := range mapping.keywords {
			if strings.Contains(description, keyword) {
				return mapping.category
			}
		}
	}
	return DefaultCategory
}

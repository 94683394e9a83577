package expressions

import (
	"math/rand/v2"
	"strconv"

	"github.com/flowbaker/autoflow/pkg/domain"
	"github.com/rs/xid"
)

const randomStringAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

type variableFunc func() string

func (r *TemplateResolver) variables(host domain.HostVariables) map[string]variableFunc {
	now := r.clock.Now()

	variables := map[string]variableFunc{
		"current_date":        func() string { return now.Format("2006-01-02") },
		"current_time":        func() string { return now.Format("15:04:05") },
		"current_datetime":    func() string { return now.Format("2006-01-02 15:04:05") },
		"current_year":        func() string { return now.Format("2006") },
		"current_month":       func() string { return now.Format("01") },
		"current_month_name":  func() string { return now.Format("January") },
		"current_day":         func() string { return now.Format("02") },
		"current_day_of_week": func() string { return now.Format("Monday") },
		"current_timestamp":   func() string { return strconv.FormatInt(now.Unix(), 10) },

		"random_number": func() string { return strconv.Itoa(1000 + rand.IntN(9000)) },
		"random_string": func() string { return randomString(8) },
		"unique_id":     func() string { return xid.New().String() },
	}

	for _, name := range []string{"site_name", "site_url", "site_description", "admin_email"} {
		value := host.Site[name]
		if value == "" {
			value = r.site[name]
		}

		variables[name] = constant(value)
	}

	for variable, key := range map[string]string{
		"post_id":      "id",
		"post_title":   "title",
		"post_url":     "url",
		"post_content": "content",
		"post_excerpt": "excerpt",
		"post_author":  "author",
		"post_date":    "date",
	} {
		variables[variable] = constant(lookupString(host.Post, key))
	}

	for variable, key := range map[string]string{
		"product_id":    "id",
		"product_name":  "name",
		"product_price": "price",
		"product_sku":   "sku",
	} {
		variables[variable] = constant(lookupString(host.Product, key))
	}

	for variable, key := range map[string]string{
		"cart_total":      "total",
		"cart_item_count": "item_count",
	} {
		variables[variable] = constant(lookupString(host.Cart, key))
	}

	return variables
}

func constant(value string) variableFunc {
	return func() string { return value }
}

func lookupString(values map[string]any, key string) string {
	value, ok := values[key]
	if !ok || value == nil {
		return ""
	}

	return domain.StringifyContent(value)
}

func randomString(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = randomStringAlphabet[rand.IntN(len(randomStringAlphabet))]
	}

	return string(b)
}

package reconcile

import (
	"math"
	"sort"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
)

// reservationAmountMinor — сумма резервирующей строки для подписки с нулевым итогом (1.00 в валюте заказа).
const reservationAmountMinor = 100

// vendorRows переводит позиции заказа в строки провайдера в порядке отправки (номера с 1).
func vendorRows(items []domain.LineItem) []domain.VendorRow {
	rows := make([]domain.VendorRow, 0, len(items))
	for i, item := range items {
		rows = append(rows, domain.VendorRow{
			RowNumber:           i + 1,
			ArticleNumber:       articleNumber(item),
			Name:                item.Name,
			Quantity:            item.Quantity,
			UnitPriceExVatMinor: item.UnitPriceExVatMinor,
			VatPercent:          item.VatPercent,
		})
	}
	return rows
}

func articleNumber(item domain.LineItem) string {
	if item.ArticleNumber != "" {
		return item.ArticleNumber
	}
	return item.ID
}

// assignRowNumbers сохраняет номера строк, присвоенные при создании заказа у провайдера.
func assignRowNumbers(o *domain.Order) {
	for i := range o.Items {
		o.Items[i].VendorRowNumber = i + 1
	}
}

// refreshRows обновляет номера строк и счета по ответу запроса к провайдеру.
// Строка провайдера сопоставляется с позицией по номеру артикула, каждая используется один раз.
// Возвращает идентификаторы позиций, которые удалось сопоставить.
func refreshRows(o *domain.Order, rows []domain.VendorRow) []string {
	used := make([]bool, len(rows))
	var matched []string
	for i := range o.Items {
		item := &o.Items[i]
		article := articleNumber(*item)
		for j, row := range rows {
			if used[j] || row.ArticleNumber != article {
				continue
			}
			used[j] = true
			if row.RowNumber > 0 {
				item.VendorRowNumber = row.RowNumber
			}
			if row.InvoiceID != "" && item.VendorInvoiceID == "" {
				item.VendorInvoiceID = row.InvoiceID
			}
			matched = append(matched, item.ID)
			break
		}
	}
	return matched
}

// rowNumbers возвращает номера строк провайдера для позиций; ok=false, если какой-то номер неизвестен.
func rowNumbers(items []domain.LineItem) ([]int, bool) {
	numbers := make([]int, 0, len(items))
	for _, item := range items {
		if item.VendorRowNumber <= 0 {
			return nil, false
		}
		numbers = append(numbers, item.VendorRowNumber)
	}
	sort.Ints(numbers)
	return numbers, true
}

// invoiceGroup — позиции одного счёта провайдера.
type invoiceGroup struct {
	invoiceID string
	items     []domain.LineItem
}

// groupByInvoice группирует позиции по счёту; группы упорядочены по возрастанию идентификатора счёта.
func groupByInvoice(items []domain.LineItem) []invoiceGroup {
	index := make(map[string]int)
	var groups []invoiceGroup
	for _, item := range items {
		i, ok := index[item.VendorInvoiceID]
		if !ok {
			i = len(groups)
			index[item.VendorInvoiceID] = i
			groups = append(groups, invoiceGroup{invoiceID: item.VendorInvoiceID})
		}
		groups[i].items = append(groups[i].items, item)
	}
	sort.SliceStable(groups, func(a, b int) bool { return groups[a].invoiceID < groups[b].invoiceID })
	return groups
}

// creditOrderRow — единая строка возврата всего заказа для карты и прямого банковского платежа.
func creditOrderRow(o *domain.Order) domain.VendorRow {
	exVat := o.TotalMinor - o.TaxMinor
	var vat float64
	if exVat > 0 {
		vat = math.Round(float64(o.TaxMinor)/float64(exVat)*100*100) / 100
	}
	return domain.VendorRow{
		Name:                "Credited order #" + o.Meta.VendorOrderID,
		Quantity:            1,
		UnitPriceExVatMinor: exVat,
		VatPercent:          vat,
	}
}

// refundRow — строка возврата произвольной суммы.
func refundRow(amountMinor int64, reason string) domain.VendorRow {
	name := "Refund"
	if reason != "" {
		name += ": " + reason
	}
	return domain.VendorRow{
		Name:                name,
		Quantity:            1,
		UnitPriceExVatMinor: amountMinor,
		VatPercent:          0,
	}
}

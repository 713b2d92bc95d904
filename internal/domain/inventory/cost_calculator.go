package inventory

import "github.com/shopspring/decimal"

// costScale decimales con los que se guarda el costo promedio.
const costScale = 4

// WeightedAverageCost recalcula el costo unitario promedio al recibir una entrada con precio.
// nuevo = ((stock * costo) + (cantidad * precio)) / (stock + cantidad)
// Si el stock previo es cero o negativo el promedio arranca del precio de la entrada.
func WeightedAverageCost(stock, cost, quantity, unitPrice decimal.Decimal) decimal.Decimal {
	if stock.LessThanOrEqual(decimal.Zero) {
		return unitPrice.Round(costScale)
	}
	total := stock.Add(quantity)
	if total.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return stock.Mul(cost).Add(quantity.Mul(unitPrice)).Div(total).Round(costScale)
}

package models

import "github.com/shopspring/decimal"

var oneHundred = decimal.NewFromInt(100)

// ComputeFeeSplit делит сумму сделки на комиссию платформы и долю
// исполнителя: fee = amount * feePercent / 100, округление до копейки
// в большую сторону при половине. Сумма частей всегда равна amount.
func ComputeFeeSplit(amount, feePercent decimal.Decimal) (fee, payeeAmount decimal.Decimal) {
	fee = amount.Mul(feePercent).Div(oneHundred).Round(2)
	payeeAmount = amount.Sub(fee)
	return fee, payeeAmount
}

// SplitAmount считает разбиение спорной суммы: refund = amount * pct / 100
// с округлением до копейки, доля исполнителя — остаток. Ни одна копейка
// не теряется и не появляется: refund + payeeAmount == amount.
func SplitAmount(amount decimal.Decimal, refundPercentage int) (refund, payeeAmount decimal.Decimal) {
	pct := decimal.NewFromInt(int64(refundPercentage))
	refund = amount.Mul(pct).Div(oneHundred).Round(2)
	payeeAmount = amount.Sub(refund)
	return refund, payeeAmount
}

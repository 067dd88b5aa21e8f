package inventory

import "time"

// CurrentLabel etiqueta de corte cuando no hay fecha ("a hoy").
const CurrentLabel = "current"

// StartOfDay devuelve las 00:00 del día de t en su misma zona.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay devuelve el último instante del día de t. Un movimiento pertenece a un corte
// cuando su fecha no es posterior a EndOfDay(corte).
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// DayBefore devuelve el día calendario anterior a t (inicio de día).
func DayBefore(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, -1)
}

// CutoffLabel representa un corte opcional como YYYY-MM-DD o "current".
func CutoffLabel(cutoff *time.Time) string {
	if cutoff == nil {
		return CurrentLabel
	}
	return cutoff.Format("2006-01-02")
}

// UpperBound convierte un corte opcional en el límite superior inclusivo de fechas.
func UpperBound(cutoff *time.Time) *time.Time {
	if cutoff == nil {
		return nil
	}
	end := EndOfDay(*cutoff)
	return &end
}

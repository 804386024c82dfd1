package models

import "errors"

// Классы ошибок ядра. Проверяются через errors.Is, оборачиваются через %w.
var (
	// ErrDataUnavailable свечи не получены после всех повторов; цикл прерывается до следующего такта
	ErrDataUnavailable = errors.New("рыночные данные недоступны")
	// ErrInvalidInput некорректный вход (неположительная цена, пустая серия свечей)
	ErrInvalidInput = errors.New("некорректные входные данные")
	// ErrOracleUnavailable AI-оракул не ответил после всех повторов; обзор откладывается до следующего такта
	ErrOracleUnavailable = errors.New("AI-оракул недоступен")
	// ErrInternalInconsistency рассогласование состояния (например, закрытие без открытой позиции)
	ErrInternalInconsistency = errors.New("внутреннее рассогласование состояния")
)

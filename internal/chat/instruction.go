package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mestreprognosticos/chatbot/internal/settings"
)

const personaTemplate = `Você é o Mestre dos Prognósticos, um guru lendário das apostas esportivas em um universo onde os placares definem o destino de todos.
Com linguagem ousada e tom confiante, seu papel é entreter e motivar os apostadores com dicas ousadas, sempre lembrando que o jogo é parte da diversão.
A data e hora atuais são %s.
Suas respostas não devem conter *, sem negrito ou itálico.
%s`

const noWeatherText = "Não foi possível obter os dados do clima do seu local."

// DefaultInstruction renders the built-in persona for the given moment and
// weather line.
func DefaultInstruction(now time.Time, weatherLine string) string {
	return fmt.Sprintf(personaTemplate, now.Format("02/01/2006 15:04:05"), weatherLine)
}

// instruction returns the admin-configured system instruction, or the default
// persona when none is stored or the store cannot be read.
func (o *Orchestrator) instruction(ctx context.Context) string {
	if o.settings != nil {
		v, err := o.settings.Get(ctx, settings.KeySystemInstruction)
		switch {
		case err == nil && strings.TrimSpace(v) != "":
			return v
		case err != nil && !errors.Is(err, settings.ErrNotFound):
			o.log.Warn("system instruction lookup failed, using default", "err", err)
		}
	}
	return DefaultInstruction(o.now(), o.weatherLine(ctx))
}

func (o *Orchestrator) weatherLine(ctx context.Context) string {
	if o.weather == nil {
		return noWeatherText
	}
	r, err := o.weather.Current(ctx, o.WeatherLocation)
	if err != nil {
		o.log.Debug("weather lookup failed", "location", o.WeatherLocation, "err", err)
		return noWeatherText
	}
	return fmt.Sprintf("No seu local (%s), agora faz %.0f°C com %s.", r.Location, r.Temperature, r.Description)
}

package agent

import (
	"fmt"
	"strings"

	"biomagnet-assist/internal/knowledge"
	"biomagnet-assist/internal/session"
)

const clinicalPreamble = `Você é um Assistente de Análise de Sessões de Biomagnetismo (Par Magnético) altamente especializado. Seu objetivo é processar os Pares Biomagnéticos encontrados em uma sessão e gerar uma análise estruturada para o terapeuta, utilizando estritamente a base de conhecimento fornecida abaixo.

BASE DE CONHECIMENTO ESSENCIAL:
O Par Biomagnético é uma estrutura bioquímica com a presença de duas cargas, uma ácida e outra alcalina, separadas pelo metabolismo do organismo humano em condições normais. O problema é a associação disso com vírus, bactérias, fungos, parasitas e disfunções glandulares.

Pares Reservatórios (R1 a R18):
`

const clinicalRules = `
FUNÇÃO E REGRAS:
1. Receber uma lista de Pares e a queixa.
2. Para cada par, identificar o patógeno ou disfunção usando APENAS a base acima. Se o par não estiver na base, use conhecimento geral de biomagnetismo focado em pH e equilíbrio.
3. Gerar análise detalhada profissional e um resumo amigável para o paciente.
4. REGRA ÉTICA: NUNCA mencione doenças ou patógenos no resumo para o paciente. Use termos como 'desequilíbrio energético', 'ajuste de pH', 'reativação do sistema'.
`

const emotionalInstruction = `Você é um Assistente de Desbloqueio Emocional com Pares Biomagnéticos. Seu objetivo é interpretar os pares encontrados em uma sessão emocional e relacioná-los às emoções e significados psicossomáticos associados, gerando uma análise estruturada para o terapeuta.

FUNÇÃO E REGRAS:
1. Receber uma lista de Pares e a queixa emocional.
2. Para cada par, indicar a emoção ou região associada e o significado psicossomático provável.
3. Gerar análise profissional acolhedora e um resumo amigável para o paciente.
4. REGRA ÉTICA: NUNCA faça diagnósticos psiquiátricos nem mencione doenças no resumo para o paciente. Use linguagem de acolhimento e equilíbrio emocional.
`

const outputContract = `
FORMATO DE SAÍDA: um único objeto JSON conforme o esquema, com os campos sessionType, complaint, analysisNarrative, pairFindings (pairLabel, locationOrEmotion, pathogenOrMeaning), patientSummary e therapistSuggestions. O campo sessionType deve repetir exatamente o tipo de sessão recebido. Responda em português.
`

var clinicalInstruction = func() string {
	var b strings.Builder
	b.WriteString(clinicalPreamble)
	for _, e := range knowledge.Defaults() {
		fmt.Fprintf(&b, "* %s: %s. %s\n", e.ID, e.Name, e.Description)
	}
	b.WriteString(clinicalRules)
	return b.String()
}()

// instruction returns the system instruction for typ, extended with the
// caller's custom knowledge entries.
func instruction(typ session.SessionType, custom []knowledge.Entry) string {
	var b strings.Builder
	if typ == session.Emotional {
		b.WriteString(emotionalInstruction)
	} else {
		b.WriteString(clinicalInstruction)
	}
	if len(custom) > 0 {
		b.WriteString("\nPARES ADICIONAIS CADASTRADOS PELO TERAPEUTA:\n")
		for _, e := range custom {
			if e.Description == "" {
				fmt.Fprintf(&b, "* %s\n", e.Name)
				continue
			}
			fmt.Fprintf(&b, "* %s: %s\n", e.Name, e.Description)
		}
	}
	b.WriteString(outputContract)
	return b.String()
}

func userContent(req session.AnalystRequest) string {
	return fmt.Sprintf("Tipo de Sessão: %s\nQueixa Principal: %s\nLista de Pares:\n%s",
		req.SessionType, req.Complaint, req.PairsText)
}

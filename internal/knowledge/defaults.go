package knowledge

type reservoir struct {
	id, name, description string
}

// Reservoir pairs R1 to R18 of the biomagnetic pair protocol.
var reservoirs = []reservoir{
	{"R1", "DENTE / RIM D/E", "Reservatório R1 (RU). Qualquer dente com dor, cárie ou infecção."},
	{"R2", "BAÇO / PULMÃO D/E", "Reservatório R2 (RB). Reservatório específico de Sífilis."},
	{"R3", "PLEURA D/E / PERITÔNIO IPS/CL", "Reservatório R3 (RB). Pleura-pleura é raro, mas pode ser qualquer lugar de pleura ou peritônio."},
	{"R4", "VESÍCULA BILIAR / VESÍCULA BILIAR", "Reservatório R4 (RV)."},
	{"R5", "URETRA SUP. / URETRA INF.", "Reservatório R5 (RV). HIV, Hepatite B e outros vírus. Papilomavírus e coronavírus. Requer impactar TIMO-RETO e INDICADOR-INDICADOR."},
	{"R6", "VAGINA D/E / VAGINA CL", "Reservatório R6 (RV). Papilomavírus e coronavírus."},
	{"R7", "METÁFISE DO FÊMUR D/E / METÁFISE DO FÊMUR CL", "Reservatório R7 (RF). Em simbiose com COTOVELO-COTOVELO. Associado a osteoporose, convulsão e dermatites."},
	{"R8", "INTER SACRO C / ILÍACO C", "Reservatório R8 (RP). Reservatório de parasita."},
	{"R9", "CÁPSULA RENAL D/E / RIM IPS", "Reservatório R9 (RU). HIV. Disfunção renal, síndromes relacionadas com a função renal e sintomas urinários."},
	{"R10", "VAGO D/E / RIM IPS", "Reservatório R10 (RB). Bactéria Shigella. Regenera o sistema nervoso. Associado a autismo. Requer impactar TIMO-RETO e INDICADOR-INDICADOR."},
	{"R11", "PERITÔNIO D/E / PERITÔNIO CL", "Reservatório R11 (RB). Reservatório de bactérias."},
	{"R12", "SUBDIAFRAGMA D/E / SUBDIAFRAGMA CL", "Reservatório R12 (RU). Cisticercose e tênias. Muito comum."},
	{"R13", "INDICADOR D/E / INDICADOR CL", "Reservatório R13 (RB). Escherichia coli. Transtornos digestivos. AIDS se associado ao HIV (impactar TIMO-RETO)."},
	{"R14", "CÁRDIA C / TEMPORAL D", "Reservatório R14 (RU). Reservatório e memória de enfermidades (vacina em massa). Afeta pele e cabelo. Apoia o sistema imunológico (CD3-CD4-CD8)."},
	{"R15", "CORPO CALOSO D/E / CORPO CALOSO CL/IPS", "Reservatório R15 (RB). Tuberculose 1 e 2. Transtornos mentais. Requer impactar SUPRAESPINHOSO-CONDUTO ESPERMÁTICO B."},
	{"R16", "APÊNDICE / BEXIGA", "Reservatório R16 (RV). Reservatório de fagos (vírus que infectam bactérias)."},
	{"R17", "NUTRÍCIA D/E / NUTRÍCIA IPS", "Reservatório R17 (RB). Reservatório de bactéria."},
	{"R18", "ASSOALHO PÉLVICO D/E / ASSOALHO PÉLVICO CL/IPS", "Reservatório R18 (RU). Reservatório universal."},
}

var defaultIDs = func() map[string]struct{} {
	m := make(map[string]struct{}, len(reservoirs))
	for _, r := range reservoirs {
		m[r.id] = struct{}{}
	}
	return m
}()

// Defaults returns a fresh copy of the default entries in their fixed order.
func Defaults() []Entry {
	out := make([]Entry, len(reservoirs))
	for i, r := range reservoirs {
		out[i] = Entry{ID: r.id, Name: r.name, Description: r.description, IsDefault: true}
	}
	return out
}

// IsDefaultID reports whether id names a compiled-in entry.
func IsDefaultID(id string) bool {
	_, ok := defaultIDs[id]
	return ok
}

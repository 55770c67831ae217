package visitors

import "hash/fnv"

var aliasAnimals = []string{
	"Lince", "Tucano", "Jaguar", "Gato", "Lobo", "Pinguim", "Coruja", "Tatu",
	"Falcão", "Golfinho", "Panda", "Urso", "Macaco", "Quati", "Capivara", "Tamanduá",
	"Cervo", "Leão", "Tigre", "Raposa", "Castor", "Esquilo", "Polvo", "Cavalo",
}

var aliasColors = []string{
	"Azul", "Dourado", "Prateado", "Verde", "Vermelho", "Roxo", "Laranja", "Rosado",
	"Branco", "Cinzento", "Amarelo", "Turquesa", "Lilás", "Escarlate", "Bronze", "Coral",
}

// Alias returns a stable, human-friendly name for a visitor id, such as
// "Lince Dourado". The same id always yields the same alias.
func Alias(visitorID string) string {
	h := fnv.New32a()
	h.Write([]byte(visitorID))
	index := h.Sum32()

	animals, colors := uint32(len(aliasAnimals)), uint32(len(aliasColors))
	animal := aliasAnimals[index%animals]
	color := aliasColors[(index/animals)%colors]
	return animal + " " + color
}

package model

// Person — ответ directory-сервиса lookup на запрос
// people/{scheme}/{identifier}?fetch=all_insts,all_groups.
// Потребляются только группы и подразделения; остальные поля
// ответа игнорируются при декодировании.
type Person struct {
	// Groups — группы lookup, в которых состоит пользователь
	Groups []Group `json:"groups"`
	// Institutions — подразделения, с которыми аффилирован пользователь
	Institutions []Institution `json:"institutions"`
}

// Group — членство в группе lookup.
type Group struct {
	// Name — имя группы (например, "uis-iar-users")
	Name string `json:"name"`
}

// Institution — аффилиация с подразделением.
type Institution struct {
	// InstID — идентификатор подразделения (например, "UIS")
	InstID string `json:"instid"`
}

// InGroup возвращает true, если пользователь состоит в группе name.
func (p *Person) InGroup(name string) bool {
	for _, g := range p.Groups {
		if g.Name == name {
			return true
		}
	}
	return false
}

// InstIDs возвращает идентификаторы всех подразделений пользователя.
func (p *Person) InstIDs() []string {
	ids := make([]string, 0, len(p.Institutions))
	for _, inst := range p.Institutions {
		ids = append(ids, inst.InstID)
	}
	return ids
}

// InInstitution возвращает true, если пользователь аффилирован
// с подразделением instID.
func (p *Person) InInstitution(instID string) bool {
	for _, inst := range p.Institutions {
		if inst.InstID == instID {
			return true
		}
	}
	return false
}

// UserLookup — связь локального пользователя с identity в lookup.
// Записи создаются внешним процессом привязки identity; сервис
// реестра читает их, но не изменяет.
type UserLookup struct {
	// Username — локальное имя пользователя (из JWT)
	Username string
	// Scheme — схема идентификатора lookup (обычно "crsid")
	Scheme string
	// Identifier — идентификатор в рамках схемы
	Identifier string
}

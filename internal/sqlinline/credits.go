package sqlinline

// QSpendCredits deducts and logs in one statement: the debit CTE only
// produces a row when the balance covers the amount, so the insert (and the
// returned transaction id) happen exactly when the check passed. Concurrent
// spenders on the same account serialize on the row update.
const QSpendCredits = `--sql dabdfa7b-62cc-4100-8123-97e12b344b25
with debit as (
    update credit_accounts
    set balance = balance - $3::bigint, updated_at = now()
    where owner_id = $1::text and balance >= $3::bigint
    returning balance
)
insert into credit_transactions(id, account_id, amount, kind, description, metadata, resulting_balance)
select $2::uuid, $1::text, -$3::bigint, 'spend', $4::text, coalesce($5::jsonb, '{}'::jsonb), balance
from debit
returning id;
`

// QCreditAccount handles refund/purchase/bonus: unconditional credit, the
// account row is created on first touch.
const QCreditAccount = `--sql c37d9239-baa2-4ab9-9740-b0cb507da965
with credited as (
    insert into credit_accounts(owner_id, balance)
    values ($1::text, $3::bigint)
    on conflict (owner_id)
    do update set balance = credit_accounts.balance + $3::bigint, updated_at = now()
    returning balance
)
insert into credit_transactions(id, account_id, amount, kind, description, metadata, resulting_balance)
select $2::uuid, $1::text, $3::bigint, $4::text, $5::text, coalesce($6::jsonb, '{}'::jsonb), balance
from credited
returning id;
`

const QSelectBalance = `--sql b517a6d5-92b5-4c86-b22e-267c7378c0a9
select balance from credit_accounts where owner_id = $1::text;
`

const QListTransactions = `--sql cb3e4d84-3807-444b-b2ba-a04c0070b9a9
select id, account_id, amount, kind, coalesce(description, ''), metadata,
  resulting_balance, created_at
from credit_transactions
where account_id = $1::text
order by created_at desc
limit $2::int;
`
